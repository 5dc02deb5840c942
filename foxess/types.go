package foxess

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// envelope is the wrapper around every FoxESS Cloud response.
type envelope struct {
	Errno  int             `json:"errno"`
	Msg    string          `json:"msg"`
	Result json.RawMessage `json:"result"`
}

type accessCount struct {
	Total     json.Number `json:"total"`
	Remaining json.Number `json:"remaining"`
}

type deviceListRequest struct {
	CurrentPage int `json:"currentPage"`
	PageSize    int `json:"pageSize"`
}

type deviceList struct {
	CurrentPage int          `json:"currentPage"`
	PageSize    int          `json:"pageSize"`
	Total       int          `json:"total"`
	Data        []deviceItem `json:"data"`
}

type deviceItem struct {
	DeviceSN    string `json:"deviceSN"`
	DeviceType  string `json:"deviceType"`
	ModuleSN    string `json:"moduleSN"`
	StationName string `json:"stationName"`
	ProductType string `json:"productType"`
	Status      int    `json:"status"`
	HasBattery  bool   `json:"hasBattery"`
	HasPV       bool   `json:"hasPV"`
}

type realQueryRequest struct {
	SN        string   `json:"sn"`
	Variables []string `json:"variables"`
}

type realQueryResult struct {
	DeviceSN string          `json:"deviceSN"`
	Time     string          `json:"time"`
	Datas    []realQueryData `json:"datas"`
}

type realQueryData struct {
	Variable string  `json:"variable"`
	Name     string  `json:"name"`
	Value    any     `json:"value"`
	Unit     *string `json:"unit"`
}

// VariableInfo is the descriptor discovery returns for a variable.
type VariableInfo struct {
	Unit  string
	Names map[string]string
}

type variableDescriptor struct {
	Unit string            `json:"unit"`
	Name map[string]string `json:"name"`
}

// Reading is the last fetched value of a variable. Value is a float64 for
// numeric readings and a string otherwise. Unit is empty when the service
// omits it.
type Reading struct {
	Value any
	Unit  string
}

// Float returns the reading as a number when it is one.
func (r Reading) Float() (float64, bool) {
	switch v := r.Value.(type) {
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}

func (r Reading) String() string {
	var value string
	switch v := r.Value.(type) {
	case nil:
		value = "N/A"
	case float64:
		value = strconv.FormatFloat(v, 'f', -1, 64)
	default:
		value = fmt.Sprint(v)
	}
	if r.Unit == "" {
		return value
	}
	return value + " " + r.Unit
}
