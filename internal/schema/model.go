// Package schema maps raw trip CSV headers onto the canonical destination
// columns.
package schema

// Kind is how a canonical column is typed after cleaning.
type Kind uint8

const (
	KindText Kind = iota
	KindNumber
	KindInteger // coded identifiers; int64 after cleaning
	KindTime
)

// Column is one canonical destination column.
type Column struct {
	Name string
	Kind Kind
}

// Canonical names the cleaner and verifier refer to directly.
const (
	PickupDatetime  = "pickup_datetime"
	DropoffDatetime = "dropoff_datetime"
	PassengerCount  = "passenger_count"
	TripDistance    = "trip_distance"
	FareAmount      = "fare_amount"
	TipAmount       = "tip_amount"
	TotalAmount     = "total_amount"
)

// AllowList is the ordered set of columns that may reach the destination.
var AllowList = []Column{
	{"vendor_id", KindInteger},
	{PickupDatetime, KindTime},
	{DropoffDatetime, KindTime},
	{PassengerCount, KindNumber},
	{TripDistance, KindNumber},
	{"rate_code", KindInteger},
	{"store_and_fwd_flag", KindText},
	{"pulocationid", KindInteger},
	{"dolocationid", KindInteger},
	{"payment_type", KindInteger},
	{FareAmount, KindNumber},
	{"extra", KindNumber},
	{"mta_tax", KindNumber},
	{TipAmount, KindNumber},
	{"tolls_amount", KindNumber},
	{TotalAmount, KindNumber},
}

// Renames maps normalized source header names to canonical names. Names
// already canonical need no entry.
var Renames = map[string]string{
	"vendorid":              "vendor_id",
	"vendor":                "vendor_id",
	"lpep_pickup_datetime":  PickupDatetime,
	"tpep_pickup_datetime":  PickupDatetime,
	"lpep_dropoff_datetime": DropoffDatetime,
	"tpep_dropoff_datetime": DropoffDatetime,
	"ratecodeid":            "rate_code",
	"pulocationid":          "pulocationid",
	"dolocationid":          "dolocationid",
}

var allowIndex = func() map[string]int {
	m := make(map[string]int, len(AllowList))
	for i, c := range AllowList {
		m[c.Name] = i
	}
	return m
}()

// Lookup returns the canonical column for a raw header cell, if any.
func Lookup(raw string) (Column, bool) {
	n := NormalizeHeader(raw)
	if c, ok := Renames[n]; ok {
		n = c
	}
	i, ok := allowIndex[n]
	if !ok {
		return Column{}, false
	}
	return AllowList[i], true
}
