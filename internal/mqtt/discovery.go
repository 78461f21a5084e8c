package mqtt

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/HerbHall/alarmdesk/pkg/models"
)

// nonAlphanumeric matches any character that is not alphanumeric or underscore.
var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// DiscoveryConfig holds a single HA MQTT discovery payload.
type DiscoveryConfig struct {
	Topic   string // Full MQTT topic (homeassistant/...)
	Payload []byte // JSON-encoded config (empty = remove)
}

// HADevice is the "device" block in HA discovery payloads.
type HADevice struct {
	Identifiers []string `json:"identifiers"`
	Name        string   `json:"name"`
	Model       string   `json:"model,omitempty"`
	ViaDevice   string   `json:"via_device,omitempty"`
}

// BinarySensorConfig is the HA discovery payload for binary_sensor.
type BinarySensorConfig struct {
	Name        string   `json:"name"`
	ObjectID    string   `json:"object_id"`
	UniqueID    string   `json:"unique_id"`
	StateTopic  string   `json:"state_topic"`
	DeviceClass string   `json:"device_class,omitempty"`
	PayloadOn   string   `json:"payload_on"`
	PayloadOff  string   `json:"payload_off"`
	Device      HADevice `json:"device"`
	Icon        string   `json:"icon,omitempty"`
}

// SensorConfig is the HA discovery payload for sensor.
type SensorConfig struct {
	Name       string   `json:"name"`
	ObjectID   string   `json:"object_id"`
	UniqueID   string   `json:"unique_id"`
	StateTopic string   `json:"state_topic"`
	Icon       string   `json:"icon,omitempty"`
	Device     HADevice `json:"device"`
}

// SafeObjectID sanitizes a string for use as an HA object_id.
func SafeObjectID(s string) string {
	s = strings.ToLower(s)
	s = nonAlphanumeric.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return "unknown"
	}
	return s
}

func equipmentKey(id int64) string { return strconv.FormatInt(id, 10) }

func buildHADevice(eq *models.Equipment) HADevice {
	name := eq.Name
	if name == "" {
		name = eq.ZabbixHostID
	}
	return HADevice{
		Identifiers: []string{"alarmdesk_" + equipmentKey(eq.ID)},
		Name:        name,
		Model:       eq.EquipmentType,
		ViaDevice:   "alarmdesk",
	}
}

// BuildEquipmentDiscoveryConfigs creates HA discovery payloads for a piece
// of equipment: an online binary_sensor and, when known, an IP sensor.
func BuildEquipmentDiscoveryConfigs(eq *models.Equipment, topicPrefix, haPrefix string) []DiscoveryConfig {
	if eq == nil {
		return nil
	}

	key := equipmentKey(eq.ID)
	safeID := SafeObjectID(key)
	haDevice := buildHADevice(eq)
	configs := make([]DiscoveryConfig, 0, 2)

	online := BinarySensorConfig{
		Name:        haDevice.Name + " Online",
		ObjectID:    "alarmdesk_" + safeID + "_online",
		UniqueID:    "alarmdesk_" + safeID + "_online",
		StateTopic:  topicPrefix + "/equipment/" + key + "/online",
		DeviceClass: "connectivity",
		PayloadOn:   "ON",
		PayloadOff:  "OFF",
		Device:      haDevice,
	}
	if payload, err := json.Marshal(online); err == nil {
		configs = append(configs, DiscoveryConfig{
			Topic:   fmt.Sprintf("%s/binary_sensor/alarmdesk_%s/online/config", haPrefix, safeID),
			Payload: payload,
		})
	}

	if eq.IPAddress != "" {
		ip := SensorConfig{
			Name:       haDevice.Name + " IP",
			ObjectID:   "alarmdesk_" + safeID + "_ip",
			UniqueID:   "alarmdesk_" + safeID + "_ip",
			StateTopic: topicPrefix + "/equipment/" + key + "/ip",
			Icon:       "mdi:ip-network",
			Device:     haDevice,
		}
		if payload, err := json.Marshal(ip); err == nil {
			configs = append(configs, DiscoveryConfig{
				Topic:   fmt.Sprintf("%s/sensor/alarmdesk_%s/ip/config", haPrefix, safeID),
				Payload: payload,
			})
		}
	}
	return configs
}

// BuildAlarmDiscoveryConfig creates an HA problem binary_sensor for an alarm.
// The sensor hangs off the owning equipment's HA device.
func BuildAlarmDiscoveryConfig(a *models.Alarm, topicPrefix, haPrefix string) DiscoveryConfig {
	alarmKey := strconv.FormatInt(a.ID, 10)
	eqKey := equipmentKey(a.EquipmentID)
	safeAlarm := SafeObjectID(alarmKey)
	safeEq := SafeObjectID(eqKey)

	cfg := BinarySensorConfig{
		Name:        a.Title,
		ObjectID:    "alarmdesk_alarm_" + safeAlarm,
		UniqueID:    "alarmdesk_alarm_" + safeAlarm,
		StateTopic:  alarmStateTopic(topicPrefix, a.ID),
		DeviceClass: "problem",
		PayloadOn:   string(models.AlarmActive),
		PayloadOff:  string(models.AlarmResolved),
		Icon:        AlarmTypeIcon(a.AlarmType),
		Device: HADevice{
			Identifiers: []string{"alarmdesk_" + eqKey},
			Name:        "Equipment " + eqKey,
			ViaDevice:   "alarmdesk",
		},
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return DiscoveryConfig{}
	}
	return DiscoveryConfig{
		Topic:   fmt.Sprintf("%s/binary_sensor/alarmdesk_%s/alarm_%s/config", haPrefix, safeEq, safeAlarm),
		Payload: payload,
	}
}

func alarmStateTopic(prefix string, id int64) string {
	return prefix + "/alarm/" + strconv.FormatInt(id, 10) + "/state"
}

// alarmState maps the alarm lifecycle onto the binary sensor's on/off
// payloads. Acknowledged alarms are still a problem.
func alarmState(s models.AlarmStatus) string {
	if s == models.AlarmResolved {
		return string(models.AlarmResolved)
	}
	return string(models.AlarmActive)
}

// AlarmTypeIcon maps an alarm type to a Material Design Icon.
func AlarmTypeIcon(t models.AlarmType) string {
	switch t {
	case models.AlarmCritical:
		return "mdi:alert-circle"
	case models.AlarmWarning:
		return "mdi:alert"
	default:
		return "mdi:information"
	}
}
