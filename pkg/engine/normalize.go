package engine

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/fluxboard/fluxboard/pkg/types"
)

// normalizePeriod resolves field-name variants, applies defaults, and
// validates one raw telemetry record. position is the record's place in the
// day's slice and is used when the record carries no explicit index. Missing
// numeric fields default to 0 except the sell price, which defaults to a
// configured fraction of the buy price.
func normalizePeriod(raw types.RawPeriod, position int, tuning Tuning) (types.PeriodInput, error) {
	if raw == nil {
		return types.PeriodInput{}, &NormalizationError{Kind: KindMissingRequiredField, Field: "period"}
	}

	r := reader{fields: foldKeys(raw)}
	p := types.PeriodInput{
		Index:      position,
		DataSource: types.DataSourcePredicted,
	}

	if idx, ok := r.intField("index", "index", "periodindex", "hour", "slot"); ok {
		p.Index = idx
	}
	if s, ok := r.stringField("dataSource", "datasource", "source"); ok {
		ds, valid := parseDataSource(s)
		if !valid {
			return types.PeriodInput{}, &NormalizationError{Kind: KindInvalidValue, Field: "dataSource", Value: s}
		}
		p.DataSource = ds
	}
	p.BuyPrice, _ = r.floatField("buyPrice", "buyprice", "importprice", "price")
	sell, sellPresent := r.floatField("sellPrice", "sellprice", "exportprice", "feedinprice")
	p.SolarProductionKWH, _ = r.floatField("solarProduction", "solarproduction", "solar", "pvproduction")
	p.HomeConsumptionKWH, _ = r.floatField("homeConsumption", "homeconsumption", "consumption", "load")
	p.GridImportedKWH, _ = r.floatField("gridImported", "gridimported", "gridimport", "imported")
	p.GridExportedKWH, _ = r.floatField("gridExported", "gridexported", "gridexport", "exported")
	p.BatteryActionKWH, _ = r.floatField("batteryAction", "batteryaction", "battery")
	p.BatterySOCStart, _ = r.floatField("batterySocStart", "batterysocstart", "socstart")
	p.BatterySOCEnd, _ = r.floatField("batterySocEnd", "batterysocend", "socend")
	if r.err != nil {
		return types.PeriodInput{}, r.err
	}

	if sellPresent {
		p.SellPrice = sell
	} else {
		// The min keeps the default below the buy price when the buy
		// price goes negative.
		p.SellPrice = math.Min(p.BuyPrice*tuning.DefaultSellPriceRatio, p.BuyPrice)
	}

	if p.Index < 0 {
		return types.PeriodInput{}, &NormalizationError{Kind: KindInvalidValue, Field: "index", Value: p.Index}
	}
	if p.SellPrice > p.BuyPrice {
		return types.PeriodInput{}, &NormalizationError{Kind: KindInvalidValue, Field: "sellPrice", Value: p.SellPrice}
	}
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"solarProduction", p.SolarProductionKWH},
		{"homeConsumption", p.HomeConsumptionKWH},
		{"gridImported", p.GridImportedKWH},
		{"gridExported", p.GridExportedKWH},
	} {
		if f.value < 0 {
			return types.PeriodInput{}, &NormalizationError{Kind: KindInvalidValue, Field: f.name, Value: f.value}
		}
	}
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"batterySocStart", p.BatterySOCStart},
		{"batterySocEnd", p.BatterySOCEnd},
	} {
		if f.value < 0 || f.value > 100 {
			return types.PeriodInput{}, &NormalizationError{Kind: KindInvalidValue, Field: f.name, Value: f.value}
		}
	}
	return p, nil
}

// reader resolves fields out of a folded record, remembering the first bad
// value it hits.
type reader struct {
	fields map[string]any
	err    error
}

func (r *reader) floatField(canonical string, aliases ...string) (float64, bool) {
	if r.err != nil {
		return 0, false
	}
	v, ok := pickField(r.fields, aliases)
	if !ok {
		return 0, false
	}
	f, ok := toFloat(v)
	if !ok || !isFinite(f) {
		r.err = &NormalizationError{Kind: KindInvalidValue, Field: canonical, Value: v}
		return 0, false
	}
	return f, true
}

func (r *reader) intField(canonical string, aliases ...string) (int, bool) {
	if r.err != nil {
		return 0, false
	}
	v, ok := pickField(r.fields, aliases)
	if !ok {
		return 0, false
	}
	n, ok := toInt(v)
	if !ok {
		r.err = &NormalizationError{Kind: KindInvalidValue, Field: canonical, Value: v}
		return 0, false
	}
	return n, true
}

func (r *reader) stringField(canonical string, aliases ...string) (string, bool) {
	if r.err != nil {
		return "", false
	}
	v, ok := pickField(r.fields, aliases)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		r.err = &NormalizationError{Kind: KindInvalidValue, Field: canonical, Value: v}
		return "", false
	}
	return s, true
}

// pickField returns the first alias present in fields. A nil value (JSON
// null) counts as absent.
func pickField(fields map[string]any, aliases []string) (any, bool) {
	for _, a := range aliases {
		if v, ok := fields[a]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// foldKeys lowercases keys and strips separators so snake_case, camelCase,
// and kebab-case spellings of the same field collide. When two raw keys fold
// to the same name the lexicographically first one wins, keeping resolution
// deterministic regardless of map order.
func foldKeys(raw types.RawPeriod) map[string]any {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	folded := make(map[string]any, len(raw))
	for _, k := range keys {
		fk := foldKey(k)
		if _, ok := folded[fk]; !ok {
			folded[fk] = raw[k]
		}
	}
	return folded
}

func foldKey(k string) string {
	var b strings.Builder
	b.Grow(len(k))
	for _, c := range k {
		switch c {
		case '_', '-', ' ':
		default:
			b.WriteRune(unicode.ToLower(c))
		}
	}
	return b.String()
}

func parseDataSource(s string) (types.DataSource, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "actual", "measured":
		return types.DataSourceActual, true
	case "predicted", "forecast", "forecasted":
		return types.DataSourcePredicted, true
	}
	return "", false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func toInt(v any) (int, bool) {
	f, ok := toFloat(v)
	if !ok || !isFinite(f) || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}
