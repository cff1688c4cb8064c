package curb

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Granularity values accepted by HistoricalData.
const (
	PerMinute = "1T"
	PerHour   = "1H"
	PerDay    = "1D"
)

// Measurement units accepted by HistoricalData.
const (
	Watt          = "w"
	DollarPerHour = "$/hr"
)

// Billing sectors.
const (
	SectorResidential = "Residential"
	SectorCommercial  = "Commercial"
)

// link is a HAL hyperlink as used by the Curb API (`_links` entries).
type link struct {
	Href    string   `json:"href"`
	Methods []string `json:"methods,omitempty"`
}

// idFromHref extracts the numeric trailing segment of a resource href, e.g.
// "/api/sensors/42" -> 42. Returns zero when the href carries no id.
func idFromHref(href string) int64 {
	idx := strings.LastIndexByte(href, '/')
	if idx < 0 {
		return 0
	}
	id, err := strconv.ParseInt(href[idx+1:], 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// entryPoint is the discovery document served at /api. The hrefs of the
// profile and device collections are not fixed and must be followed from
// here.
type entryPoint struct {
	Links struct {
		Self     link `json:"self"`
		Profiles link `json:"profiles"`
		Devices  link `json:"devices"`
	} `json:"_links"`
}

// Sensor is a physical energy-monitoring hub exposing one or more registers.
type Sensor struct {
	ID int64 `json:"id"`
	// Name is the unique serial number of the hub.
	Name string `json:"name"`
	// ArbitraryName is the user-assigned name.
	ArbitraryName string `json:"arbitrary_name"`
}

func (s *Sensor) UnmarshalJSON(data []byte) error {
	type sensor Sensor
	aux := struct {
		*sensor
		Links struct {
			Self link `json:"self"`
		} `json:"_links"`
	}{sensor: (*sensor)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	// Some API responses omit the id field and only carry the self link
	if s.ID == 0 {
		s.ID = idFromHref(aux.Links.Self.Href)
	}
	return nil
}

// SensorGroup is a logical grouping of sensors measuring power at a common
// location.
type SensorGroup struct {
	ID      int64    `json:"id"`
	Sensors []Sensor `json:"-"`
}

func (g *SensorGroup) UnmarshalJSON(data []byte) error {
	type sensorGroup SensorGroup
	aux := struct {
		*sensorGroup
		Links struct {
			Self link `json:"self"`
		} `json:"_links"`
		Embedded struct {
			Sensors []Sensor `json:"sensors"`
		} `json:"_embedded"`
	}{sensorGroup: (*sensorGroup)(g)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if g.ID == 0 {
		g.ID = idFromHref(aux.Links.Self.Href)
	}
	g.Sensors = aux.Embedded.Sensors
	return nil
}

// Device is a monitored unit such as a home, grouping one or more sensor
// groups.
type Device struct {
	ID           int64         `json:"id"`
	Name         string        `json:"name"`
	BuildingType string        `json:"building_type"`
	Timezone     string        `json:"timezone"`
	SensorGroups []SensorGroup `json:"-"`
}

func (d *Device) UnmarshalJSON(data []byte) error {
	type device Device
	aux := struct {
		*device
		Links struct {
			Self link `json:"self"`
		} `json:"_links"`
		Embedded struct {
			SensorGroups []SensorGroup `json:"sensor_groups"`
		} `json:"_embedded"`
	}{device: (*device)(d)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if d.ID == 0 {
		d.ID = idFromHref(aux.Links.Self.Href)
	}
	d.SensorGroups = aux.Embedded.SensorGroups
	return nil
}

// Register is a single source of power-measurement data, typically one
// circuit breaker of an electric panel.
type Register struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	// Multiplier scales reported values.
	Multiplier int `json:"multiplier"`
	// FlipDomain inverts the sign of reported values.
	FlipDomain bool `json:"flip_domain"`
}

// RegisterGroups buckets a profile's registers by classification.
type RegisterGroups struct {
	Grid    []Register `json:"grid"`
	Normals []Register `json:"normals"`
	Solar   []Register `json:"solar"`
	Use     []Register `json:"use"`
}

// BillingModel describes the utility and billing tier for a customer.
type BillingModel struct {
	// Sector is SectorResidential or SectorCommercial.
	Sector  string `json:"sector"`
	Label   string `json:"label"`
	Utility string `json:"utility"`
	Name    string `json:"name"`
}

// Billing describes how and when the customer is billed.
type Billing struct {
	ProfileID    int64        `json:"id"`
	BillingModel BillingModel `json:"billing_model"`
	DayOfMonth   int          `json:"billing_day_of_month"`
	ZipCode      int          `json:"zip_code"`
	DollarPerKWh float64      `json:"dollar_pkwh"`
}

// RealTimeConfig carries the connection parameters for the real-time
// streaming API, as published inside a profile.
type RealTimeConfig struct {
	Topic  string `json:"topic"`
	Format string `json:"format"`
	Prefix string `json:"prefix"`
	// WebsocketURL is the broker endpoint, taken from `_links.ws.href`.
	WebsocketURL string `json:"-"`
}

func (r *RealTimeConfig) UnmarshalJSON(data []byte) error {
	type realTimeConfig RealTimeConfig
	aux := struct {
		*realTimeConfig
		Links struct {
			WS link `json:"ws"`
		} `json:"_links"`
	}{realTimeConfig: (*realTimeConfig)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.WebsocketURL = aux.Links.WS.Href
	return nil
}

// Profile defines how to interpret measurement data for one installation:
// its registers, their grouping, billing information, and real-time access.
type Profile struct {
	ID             int64            `json:"id"`
	DisplayName    string           `json:"display_name"`
	RealTime       []RealTimeConfig `json:"real_time"`
	RegisterGroups RegisterGroups   `json:"register_groups"`
	Registers      []Register       `json:"-"`
	Billing        Billing          `json:"-"`
}

func (p *Profile) UnmarshalJSON(data []byte) error {
	type profile Profile
	aux := struct {
		*profile
		Embedded struct {
			Billing   Billing `json:"billing"`
			Registers struct {
				Registers []Register `json:"registers"`
			} `json:"registers"`
		} `json:"_embedded"`
	}{profile: (*profile)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	p.Billing = aux.Embedded.Billing
	p.Registers = aux.Embedded.Registers.Registers
	p.resolveRegisters()
	return nil
}

// resolveRegisters replaces register-group members with the canonical
// entries from the profile's register list. Group members often carry only
// the register id; the full metadata (label, multiplier) lives in the list.
func (p *Profile) resolveRegisters() {
	if len(p.Registers) == 0 {
		return
	}
	byID := make(map[string]Register, len(p.Registers))
	for _, r := range p.Registers {
		byID[r.ID] = r
	}
	for _, group := range [][]Register{
		p.RegisterGroups.Grid,
		p.RegisterGroups.Normals,
		p.RegisterGroups.Solar,
		p.RegisterGroups.Use,
	} {
		for i, r := range group {
			if canonical, ok := byID[r.ID]; ok {
				group[i] = canonical
			}
		}
	}
}

// FindRegister returns the register with the given id, or nil if the profile
// has no such register.
func (p *Profile) FindRegister(id string) *Register {
	for i := range p.Registers {
		if p.Registers[i].ID == id {
			return &p.Registers[i]
		}
	}
	return nil
}

// Measurement is a block of recorded power usage for a profile.
type Measurement struct {
	// Granularity is PerMinute, PerHour or PerDay.
	Granularity string `json:"granularity"`
	// Since and Until bound the block in epoch seconds.
	Since int64 `json:"since"`
	Until int64 `json:"until"`
	// Unit is Watt or DollarPerHour.
	Unit string `json:"unit"`
	// Headers names the columns of Data; the first column is the sample
	// timestamp, the rest are register ids.
	Headers []string    `json:"headers"`
	Data    [][]float64 `json:"data"`
}

// profilesEnvelope is the collection shape of the profiles resource.
type profilesEnvelope struct {
	Embedded struct {
		Profiles []Profile `json:"profiles"`
	} `json:"_embedded"`
}

// devicesEnvelope is the collection shape of the devices resource.
type devicesEnvelope struct {
	Devices []Device `json:"devices"`
}

// historicalEnvelope wraps measurement results; the API returns a
// single-element results list.
type historicalEnvelope struct {
	Results []Measurement `json:"results"`
}
