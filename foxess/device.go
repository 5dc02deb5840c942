package foxess

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
)

// Device is one inverter on the account. Its variable map starts empty and
// is filled by FetchAvailableVariables and FetchVariables. A Device is not
// safe for concurrent use.
type Device struct {
	Serial      string
	Name        string
	ModuleSN    string
	StationName string
	ProductType string
	Status      int
	HasBattery  bool
	HasPV       bool

	client *Client
	names  []string
	values map[string]*Reading
	infos  map[string]VariableInfo
}

func newDevice(c *Client, item deviceItem) *Device {
	return &Device{
		Serial:      item.DeviceSN,
		Name:        item.DeviceType,
		ModuleSN:    item.ModuleSN,
		StationName: item.StationName,
		ProductType: item.ProductType,
		Status:      item.Status,
		HasBattery:  item.HasBattery,
		HasPV:       item.HasPV,
		client:      c,
		values:      make(map[string]*Reading),
		infos:       make(map[string]VariableInfo),
	}
}

func (d *Device) String() string {
	return fmt.Sprintf("%s (%s)", d.Serial, d.Name)
}

// register adds name to the key set if needed and stores value for it.
func (d *Device) register(name string, value *Reading) {
	if _, ok := d.values[name]; !ok {
		d.names = append(d.names, name)
	}
	d.values[name] = value
}

// FetchAvailableVariables asks the service which variables exist and
// registers each of them with no value. Names already known keep their
// position but lose their value.
func (d *Device) FetchAvailableVariables(ctx context.Context) error {
	var items []map[string]json.RawMessage
	if err := d.client.call(ctx, http.MethodGet, pathVariableGet, nil, &items); err != nil {
		return err
	}

	for _, item := range items {
		keys := make([]string, 0, len(item))
		for key := range item {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, name := range keys {
			d.register(name, nil)

			var desc variableDescriptor
			if err := json.Unmarshal(item[name], &desc); err == nil {
				d.infos[name] = VariableInfo{Unit: desc.Unit, Names: desc.Name}
			}
		}
	}
	return nil
}

// FetchVariables queries the current values of names and stores them.
func (d *Device) FetchVariables(ctx context.Context, names []string) error {
	if names == nil {
		names = []string{}
	}

	var results []realQueryResult
	req := realQueryRequest{SN: d.Serial, Variables: names}
	if err := d.client.call(ctx, http.MethodPost, pathRealTimeQuery, req, &results); err != nil {
		return err
	}
	if len(results) == 0 {
		return nil
	}

	for _, item := range results[0].Datas {
		reading := &Reading{Value: item.Value}
		if item.Unit != nil {
			reading.Unit = *item.Unit
		}
		d.register(item.Variable, reading)
	}
	return nil
}

// FetchAllVariables fetches every variable registered so far.
func (d *Device) FetchAllVariables(ctx context.Context) error {
	return d.FetchVariables(ctx, d.AvailableVariables())
}

// AvailableVariables returns the registered names in the order first seen.
func (d *Device) AvailableVariables() []string {
	names := make([]string, len(d.names))
	copy(names, d.names)
	return names
}

// Variable returns the last fetched reading of name, or nil if it has not
// been fetched since discovery.
func (d *Device) Variable(name string) (*Reading, error) {
	value, ok := d.values[name]
	if !ok {
		return nil, &UnknownVariableError{Serial: d.Serial, Name: name}
	}
	return value, nil
}

// AllVariables returns a copy of the variable map. Unfetched names map to nil.
func (d *Device) AllVariables() map[string]*Reading {
	all := make(map[string]*Reading, len(d.values))
	for name, value := range d.values {
		all[name] = value
	}
	return all
}

// VariableInfo returns the descriptor discovery reported for name.
func (d *Device) VariableInfo(name string) (VariableInfo, bool) {
	info, ok := d.infos[name]
	return info, ok
}
