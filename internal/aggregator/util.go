package aggregator

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/edgarprofiles/engine/pkg/profile"
)

func zapErr(err error) zap.Field { return zap.Error(err) }

// marshalFacts / unmarshalFacts round-trip the parsed financial time
// series through CompanyBundle.FactsJSON so a cache hit does not need
// to re-fetch or re-parse the XBRL document.
func marshalFacts(series profile.FinancialTimeSeries) ([]byte, error) {
	return json.Marshal(series)
}

func unmarshalFacts(data []byte) (profile.FinancialTimeSeries, error) {
	var series profile.FinancialTimeSeries
	if len(data) == 0 {
		return series, nil
	}
	err := json.Unmarshal(data, &series)
	return series, err
}
