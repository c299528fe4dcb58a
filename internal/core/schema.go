package core

import (
	"regexp"

	"github.com/JonMunkholm/parque/internal/normalize"
	"github.com/JonMunkholm/parque/internal/policy"
)

var (
	hostnamePattern  = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
	userIDPattern    = regexp.MustCompile(`^[\p{L}0-9._@ -]+$`)
	featurePattern   = regexp.MustCompile(`^\d{2}H\d$`)
	osBuildPattern   = regexp.MustCompile(`^\d{4,5}(\.\d+)?$`)
	attentionDomain  = []string{"INBOUND", "OUTBOUND", "MIXTO", "CHAT", "EMAIL", "SOPORTE", "OTRO"}
	ramTypeDomain    = []string{"DDR", "DDR2", "DDR3", "DDR4", "DDR5"}
	diskTypeDomain   = []string{normalize.StorageSSD, normalize.StorageHDD, normalize.StorageUnspecified}
	cpuBrandDomain   = []string{"Intel", "AMD", normalize.Other}
	browserDomain    = []string{"Edge", "Chrome", "Firefox", normalize.BrowserIE, "Safari", "Opera", "Brave", normalize.Other}
	connectionDomain = []string{"Ethernet", "Fibra", "Cable", "DSL", "Móvil", "Satelital", "WiFi", normalize.Other}
)

func bounds(lo, hi float64) (*float64, *float64) {
	return policy.Float(lo), policy.Float(hi)
}

// InventorySchema returns the static schema for InventoryRecord value maps.
func InventorySchema() []FieldSpec {
	specs := []FieldSpec{
		{Name: "audit_id", Type: FieldText, MaxLength: 64},
		{Name: "fecha_auditoria", Type: FieldDate, Recommended: true},
		{Name: "proveedor", Type: FieldText, Required: true, MaxLength: 120},
		{Name: "sitio", Type: FieldText, Required: true, MaxLength: 120},
		{Name: "tipo_atencion", Type: FieldEnum, EnumValues: attentionDomain},
		{Name: "usuario_id", Type: FieldText, MaxLength: 60, Pattern: userIDPattern},
		{Name: "hostname", Type: FieldText, Required: true, MaxLength: 63, Pattern: hostnamePattern},

		{Name: "cpu_marca", Type: FieldEnum, EnumValues: cpuBrandDomain},
		{Name: "cpu_modelo", Type: FieldText, MaxLength: 60},
		{Name: "cpu_generacion", Type: FieldInteger},
		{Name: "cpu_velocidad_ghz", Type: FieldDecimal},
		{Name: "cpu_nucleos", Type: FieldInteger},
		{Name: "ram_gb", Type: FieldDecimal, Recommended: true},
		{Name: "ram_tipo", Type: FieldEnum, EnumValues: ramTypeDomain},
		{Name: "ram_velocidad_mhz", Type: FieldInteger},
		{Name: "disco_tipo", Type: FieldEnum, EnumValues: diskTypeDomain},
		{Name: "disco_capacidad_gb", Type: FieldDecimal, Recommended: true},
		{Name: "disco_libre_gb", Type: FieldDecimal},

		{Name: "so_nombre", Type: FieldText, Recommended: true, MaxLength: 60},
		{Name: "so_version", Type: FieldText, Pattern: featurePattern},
		{Name: "so_build", Type: FieldText, Pattern: osBuildPattern},
		{Name: "navegador_nombre", Type: FieldEnum, EnumValues: browserDomain},
		{Name: "navegador_version", Type: FieldInteger},
		{Name: "antivirus_marca", Type: FieldText, Recommended: true, MaxLength: 60},
		{Name: "antivirus_actualizado", Type: FieldBool},

		{Name: "diadema_marca", Type: FieldText, MaxLength: 60},
		{Name: "webcam", Type: FieldBool},

		{Name: "isp", Type: FieldText, MaxLength: 80},
		{Name: "tipo_conexion", Type: FieldEnum, EnumValues: connectionDomain},
		{Name: "velocidad_descarga_mbps", Type: FieldDecimal, Recommended: true},
		{Name: "velocidad_subida_mbps", Type: FieldDecimal, Recommended: true},
		{Name: "latencia_ms", Type: FieldDecimal},
	}

	ranges := map[string][2]float64{
		"cpu_generacion":          {1, 20},
		"cpu_velocidad_ghz":       {0.5, 6.5},
		"cpu_nucleos":             {1, 128},
		"ram_gb":                  {1, 1024},
		"ram_velocidad_mhz":       {200, 10000},
		"disco_capacidad_gb":      {8, 20000},
		"disco_libre_gb":          {0, 20000},
		"navegador_version":       {1, 999},
		"velocidad_descarga_mbps": {0, 10000},
		"velocidad_subida_mbps":   {0, 10000},
		"latencia_ms":             {0, 5000},
	}
	for i := range specs {
		if r, ok := ranges[specs[i].Name]; ok {
			specs[i].Min, specs[i].Max = bounds(r[0], r[1])
		}
	}
	return specs
}
