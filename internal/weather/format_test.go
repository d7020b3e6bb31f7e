package weather

import (
	"strings"
	"testing"
	"time"
)

func TestFormatSnapshot(t *testing.T) {
	now := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	snap := Snapshot{
		Location: Location{City: "Jakarta", Country: "ID"},
		Days: []DayBucket{
			{
				Date: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
				Readings: []HourlyReading{
					{Time: time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC), TempC: 29.5, FeelsLikeC: 33, HumidityPct: 78, WindSpeed: 3.1, PressureHpa: 1009, ConditionText: "hujan ringan"},
				},
			},
			{
				Date: time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC),
				Readings: []HourlyReading{
					{Time: time.Date(2024, 3, 12, 15, 0, 0, 0, time.UTC), TempC: 31, ConditionText: "berawan"},
				},
			},
		},
	}

	out := FormatSnapshot(snap, now)

	for _, want := range []string{
		"Data Cuaca untuk Jakarta, ID:",
		"📅 Hari ini (10 March 2024)",
		"📅 2 hari ke depan (12 March 2024)",
		"⏰ Pukul 09:00",
		"🌡️ Suhu: 29.5°C",
		"🌡️ Terasa seperti: 33°C",
		"💧 Kelembaban: 78%",
		"💨 Kecepatan Angin: 3.1 m/s",
		"🌥️ Kondisi: hujan ringan",
		"📊 Tekanan: 1009 hPa",
		"---",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q\n%s", want, out)
		}
	}
	if strings.HasPrefix(out, "\n") || strings.HasSuffix(out, "\n") {
		t.Errorf("expected trimmed output")
	}
}

func TestFormatSnapshotWithoutCountry(t *testing.T) {
	snap := Snapshot{
		Location: Location{City: "Atlantis"},
		Days: []DayBucket{{
			Date:     time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
			Readings: []HourlyReading{{Time: time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)}},
		}},
	}

	out := FormatSnapshot(snap, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))
	if !strings.HasPrefix(out, "Data Cuaca untuk Atlantis:") {
		t.Errorf("unexpected heading: %q", strings.SplitN(out, "\n", 2)[0])
	}
}

func TestFormatSnapshotPlaceholder(t *testing.T) {
	if got := FormatSnapshot(Snapshot{Location: Location{City: "Jakarta"}}, time.Now()); got != NoDataPlaceholder {
		t.Errorf("expected placeholder, got %q", got)
	}
}

func TestSummarize(t *testing.T) {
	day := DayBucket{Readings: []HourlyReading{
		{TempC: 20, HumidityPct: 50, ConditionText: "cerah"},
		{TempC: 30, HumidityPct: 70, ConditionText: "hujan"},
		{TempC: 25, HumidityPct: 60, ConditionText: "hujan"},
	}}

	sum := day.Summarize()
	if sum.MinTempC != 20 || sum.MaxTempC != 30 {
		t.Errorf("unexpected min/max: %v/%v", sum.MinTempC, sum.MaxTempC)
	}
	if sum.AvgTempC != 25 || sum.AvgHumidity != 60 {
		t.Errorf("unexpected averages: %v/%v", sum.AvgTempC, sum.AvgHumidity)
	}
	if sum.Condition != "hujan" {
		t.Errorf("expected majority condition hujan, got %q", sum.Condition)
	}

	tie := DayBucket{Readings: []HourlyReading{{ConditionText: "berawan"}, {ConditionText: "cerah"}}}
	if got := tie.Summarize().Condition; got != "berawan" {
		t.Errorf("expected tie to go to earliest reading, got %q", got)
	}
}
