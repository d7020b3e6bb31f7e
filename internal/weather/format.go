package weather

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NoDataPlaceholder replaces the formatted forecast when a snapshot carries no usable data.
const NoDataPlaceholder = "Data cuaca tidak tersedia"

// FormatSnapshot renders a snapshot as the plain-text block embedded in
// weather-grounded prompts. Day headings are relative to now.
func FormatSnapshot(s Snapshot, now time.Time) string {
	if len(s.Days) == 0 {
		return NoDataPlaceholder
	}

	var sb strings.Builder

	place := s.Location.City
	if s.Location.Country != "" {
		place = fmt.Sprintf("%s, %s", s.Location.City, s.Location.Country)
	}
	fmt.Fprintf(&sb, "Data Cuaca untuk %s:\n\n", place)

	for _, day := range s.Days {
		sb.WriteString(dayHeading(day.Date, now))

		sum := day.Summarize()
		fmt.Fprintf(&sb, "Ringkasan: %s°C - %s°C, rata-rata kelembaban %s%%", num(sum.MinTempC), num(sum.MaxTempC), num(round1(sum.AvgHumidity)))
		if sum.Condition != "" {
			fmt.Fprintf(&sb, ", umumnya %s", sum.Condition)
		}
		sb.WriteString("\n")

		for _, r := range day.Readings {
			sb.WriteString(formatReading(r))
		}
	}

	return strings.TrimSpace(sb.String())
}

func dayHeading(date, now time.Time) string {
	now = now.In(date.Location())
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, date.Location())
	label := date.Format("02 January 2006")

	daysAhead := int(date.Sub(today).Round(time.Hour).Hours() / 24)
	switch {
	case daysAhead == 0:
		return fmt.Sprintf("\n📅 Hari ini (%s)\n", label)
	case daysAhead > 0:
		return fmt.Sprintf("\n📅 %d hari ke depan (%s)\n", daysAhead, label)
	default:
		return fmt.Sprintf("\n📅 %s\n", label)
	}
}

func formatReading(r HourlyReading) string {
	cond := r.ConditionText
	if cond == "" {
		cond = string(r.Condition)
	}
	return fmt.Sprintf(`
⏰ Pukul %s
🌡️ Suhu: %s°C
🌡️ Terasa seperti: %s°C
💧 Kelembaban: %s%%
💨 Kecepatan Angin: %s m/s
🌥️ Kondisi: %s
📊 Tekanan: %s hPa
---`,
		r.Time.Format("15:04"),
		num(r.TempC),
		num(r.FeelsLikeC),
		num(r.HumidityPct),
		num(r.WindSpeed),
		cond,
		num(r.PressureHpa),
	)
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func round1(v float64) float64 {
	s := strconv.FormatFloat(v, 'f', 1, 64)
	out, _ := strconv.ParseFloat(s, 64)
	return out
}
