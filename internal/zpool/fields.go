package zpool

// Meta describes how a metric field should be presented by a Home
// Assistant sensor entity. Fields without an entry still publish; they
// just carry no unit or device class hints.
type Meta struct {
	// Label is the human-readable field name shown in HA.
	Label string
	// Unit is the unit_of_measurement, empty when dimensionless.
	Unit string
	// DeviceClass is the HA device class hint, empty when none applies.
	DeviceClass string
	// StateClass marks numeric measurements for HA statistics.
	StateClass string
	// Icon is an optional mdi icon override.
	Icon string
}

// fieldMeta maps zpool list column keys to presentation metadata.
// Derived fields (health_code) and synthesized extra columns fall back
// to a bare label.
var fieldMeta = map[string]Meta{
	"size":        {Label: "Size", Unit: "B", DeviceClass: "data_size", StateClass: "measurement"},
	"alloc":       {Label: "Allocated", Unit: "B", DeviceClass: "data_size", StateClass: "measurement"},
	"free":        {Label: "Free", Unit: "B", DeviceClass: "data_size", StateClass: "measurement"},
	"ckpoint":     {Label: "Checkpoint", Unit: "B", DeviceClass: "data_size"},
	"expandsz":    {Label: "Expandable Size", Unit: "B", DeviceClass: "data_size"},
	"frag":        {Label: "Fragmentation", Unit: "%", StateClass: "measurement", Icon: "mdi:chart-scatter-plot"},
	"cap":         {Label: "Capacity", Unit: "%", StateClass: "measurement", Icon: "mdi:gauge"},
	"dedup":       {Label: "Dedup Ratio", StateClass: "measurement", Icon: "mdi:content-duplicate"},
	"health":      {Label: "Health", Icon: "mdi:harddisk"},
	"health_code": {Label: "Health Code", StateClass: "measurement", Icon: "mdi:harddisk-plus"},
	"altroot":     {Label: "Alt Root"},
}

// MetaFor returns the presentation metadata for a field key. Unknown
// keys get a Meta with the key itself as the label so auto-surfaced
// columns still render sensibly.
func MetaFor(key string) Meta {
	if m, ok := fieldMeta[key]; ok {
		return m
	}
	return Meta{Label: key}
}

// healthCodes maps zpool health states to stable numeric codes so the
// hub can graph and alert on health transitions. Gaps between groups
// leave room for transitional states without renumbering.
var healthCodes = map[string]int{
	"ONLINE":   0,
	"DEGRADED": 11,
	"OFFLINE":  21,
	"UNAVAIL":  22,
	"FAULTED":  23,
	"REMOVED":  24,
}

// healthCodeUnknown is reported for health states this build does not
// recognize.
const healthCodeUnknown = 99

// HealthCode returns the numeric code for a zpool health state.
func HealthCode(state string) int {
	if code, ok := healthCodes[state]; ok {
		return code
	}
	return healthCodeUnknown
}
