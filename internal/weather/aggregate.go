package weather

// DaySummary condenses the readings of one DayBucket.
type DaySummary struct {
	MinTempC    float64
	MaxTempC    float64
	AvgTempC    float64
	AvgHumidity float64
	AvgWind     float64
	AvgPressure float64
	// Condition is the most frequent condition text; ties go to the earliest reading.
	Condition string
}

// Summarize aggregates a day's readings. Numeric fields are averaged and the
// condition is selected by majority.
func (d DayBucket) Summarize() DaySummary {
	if len(d.Readings) == 0 {
		return DaySummary{}
	}

	var (
		sumTemp     float64
		sumHumidity float64
		sumWind     float64
		sumPressure float64
	)

	conditionCounts := make(map[string]int)
	firstSeen := make(map[string]int)

	summary := DaySummary{
		MinTempC: d.Readings[0].TempC,
		MaxTempC: d.Readings[0].TempC,
	}

	for i, r := range d.Readings {
		sumTemp += r.TempC
		sumHumidity += r.HumidityPct
		sumWind += r.WindSpeed
		sumPressure += r.PressureHpa

		if r.TempC < summary.MinTempC {
			summary.MinTempC = r.TempC
		}
		if r.TempC > summary.MaxTempC {
			summary.MaxTempC = r.TempC
		}

		if r.ConditionText == "" {
			continue
		}
		conditionCounts[r.ConditionText]++
		if _, ok := firstSeen[r.ConditionText]; !ok {
			firstSeen[r.ConditionText] = i
		}
	}

	n := float64(len(d.Readings))
	summary.AvgTempC = sumTemp / n
	summary.AvgHumidity = sumHumidity / n
	summary.AvgWind = sumWind / n
	summary.AvgPressure = sumPressure / n

	bestCount := 0
	for cond, count := range conditionCounts {
		if count > bestCount || (count == bestCount && firstSeen[cond] < firstSeen[summary.Condition]) {
			bestCount = count
			summary.Condition = cond
		}
	}

	return summary
}
