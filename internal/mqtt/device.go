package mqtt

import (
	"github.com/nugget/zpool-mqtt/internal/buildinfo"
	"github.com/nugget/zpool-mqtt/internal/registry"
)

// DeviceInfo holds the Home Assistant device registry fields shared by
// all sensor entities of one pool. Every metric sensor references its
// pool's device block so HA renders one device page per pool.
type DeviceInfo struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	SWVersion    string   `json:"sw_version"`
}

// SensorConfig is the JSON payload for an HA MQTT sensor discovery
// message. It is published (retained) to the discovery topic once per
// entity identity per broker session.
type SensorConfig struct {
	Name                string     `json:"name"`
	UniqueID            string     `json:"unique_id"`
	StateTopic          string     `json:"state_topic"`
	AvailabilityTopic   string     `json:"availability_topic"`
	JsonAttributesTopic string     `json:"json_attributes_topic,omitempty"`
	Device              DeviceInfo `json:"device"`
	Icon                string     `json:"icon,omitempty"`
	UnitOfMeasurement   string     `json:"unit_of_measurement,omitempty"`
	DeviceClass         string     `json:"device_class,omitempty"`
	StateClass          string     `json:"state_class,omitempty"`
	ExpireAfter         int        `json:"expire_after,omitempty"`
}

// NewPoolDevice creates the DeviceInfo for a pool. The identifier is
// the pool's stable device identity (see [registry.DeviceIdentity]),
// so the HA device and its entity history survive process restarts.
func NewPoolDevice(poolName string) DeviceInfo {
	return DeviceInfo{
		Identifiers:  []string{registry.DeviceIdentity(poolName)},
		Name:         poolName,
		Manufacturer: "zpool",
		Model:        "list",
		SWVersion:    buildinfo.Version,
	}
}
