package core

// error_messages.go maps technical errors to user-facing messages with a
// support code. Codes are grouped by category:
//
//	FILE001-FILE099  uploaded file problems (size, format, encoding, empty)
//	MAP001-MAP099    column mapping
//	JOB001-JOB099    job lifecycle (busy, not found, cancelled, timeout)
//	ERR001-ERR099    error ledger
//	DB001-DB099      persistence
//	RATE001          request throttling
//	GEN000           fallback for anything unrecognized

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserMessage is a user-facing explanation of an error.
type UserMessage struct {
	Message string `json:"mensaje"`
	Action  string `json:"accion"`
	Code    string `json:"codigo"`
}

// sentinelMessages are matched with errors.Is before any text pattern.
var sentinelMessages = []struct {
	err error
	msg UserMessage
}{
	{ErrFileTooLarge, UserMessage{"El archivo supera el tamaño máximo permitido", "Dividir el inventario en archivos más pequeños", "FILE001"}},
	{ErrEmptyFile, UserMessage{"El archivo no contiene filas de datos", "Verificar que la hoja tenga encabezados y al menos una fila", "FILE002"}},
	{ErrProcessorColumnMissing, UserMessage{"No se encontró una columna de procesador", "Agregar una columna 'Procesador' o 'CPU' al archivo", "MAP001"}},
	{ErrTooManyJobs, UserMessage{"Hay demasiados procesos en ejecución", "Esperar unos momentos y reintentar", "JOB001"}},
	{ErrJobNotFound, UserMessage{"El proceso no existe o ya expiró", "Iniciar una nueva carga del archivo", "JOB002"}},
	{ErrInvalidTransition, UserMessage{"El proceso ya finalizó", "Consultar el estado final del proceso", "JOB003"}},
	{ErrJobRunning, UserMessage{"El proceso aún está en ejecución", "Consultar nuevamente cuando finalice", "JOB007"}},
	{context.Canceled, UserMessage{"La operación fue cancelada", "Reintentar cuando esté listo", "JOB004"}},
	{context.DeadlineExceeded, UserMessage{"La operación excedió el tiempo máximo", "Reintentar con un archivo más pequeño", "JOB005"}},
	{ErrNoFile, UserMessage{"No se seleccionó ningún archivo", "Seleccionar un archivo .xlsx o .csv", "FILE005"}},
	{ErrErrorNotFound, UserMessage{"El error indicado no existe", "Actualizar el listado de errores", "ERR001"}},
}

// errorPatterns match lower-cased error text; the first match wins, so more
// specific patterns come first.
var errorPatterns = []struct {
	pattern string
	msg     UserMessage
}{
	{"zip: not a valid zip file", UserMessage{"El libro de Excel está dañado o no es .xlsx", "Guardar nuevamente el archivo como .xlsx o exportarlo a CSV", "FILE003"}},
	{"parse error on line", UserMessage{"El archivo CSV tiene un formato inválido", "Revisar comillas y separadores del archivo", "FILE004"}},
	{"unsupported file type", UserMessage{"Tipo de archivo no soportado", "Usar un archivo .xlsx, .csv o .txt", "FILE006"}},
	{"missing rules file", UserMessage{"No se encontró el archivo de reglas", "Verificar la ruta del archivo de reglas", "JOB006"}},
	{"connection refused", UserMessage{"No se pudo conectar con la base de datos", "Reintentar en unos momentos", "DB001"}},
	{"connection reset", UserMessage{"Se interrumpió la conexión con la base de datos", "Reintentar la operación", "DB002"}},
	{"deadlock", UserMessage{"La base de datos estaba ocupada", "Reintentar la operación", "DB003"}},
	{"violates", UserMessage{"Los datos no cumplen una restricción de la base de datos", "Revisar registros duplicados en el archivo", "DB004"}},
	{"rate limit", UserMessage{"Demasiadas solicitudes", "Esperar un momento antes de reintentar", "RATE001"}},
}

var defaultMessage = UserMessage{
	Message: "Ocurrió un error inesperado",
	Action:  "Reintentar o contactar a soporte",
	Code:    "GEN000",
}

// MapError converts err to a user-facing message. Unknown errors map to
// GEN000; nil maps to the zero message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}
	var ue *UserError
	if errors.As(err, &ue) {
		return ue.User
	}
	for _, s := range sentinelMessages {
		if errors.Is(err, s.err) {
			return s.msg
		}
	}
	text := strings.ToLower(err.Error())
	for _, p := range errorPatterns {
		if strings.Contains(text, p.pattern) {
			return p.msg
		}
	}
	return defaultMessage
}

// FormatUserError renders "Message (Código: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Código: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message.
func IsUserFacing(err error) bool {
	return err != nil && MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err. It returns nil for a nil err.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{Technical: err, User: MapError(err)}
}
