package util

import "time"

// TradingCalendar enumerates the days on which a market produces a daily
// bar. Weekends are closed; holidays are not modelled.
type TradingCalendar struct {
	market string
}

// NewTradingCalendar creates a TradingCalendar for the given market.
func NewTradingCalendar(market string) *TradingCalendar {
	return &TradingCalendar{market: market}
}

// Market returns the market the calendar was built for.
func (tc *TradingCalendar) Market() string { return tc.market }

// IsTradingDay reports whether t falls on a weekday (UTC).
func (tc *TradingCalendar) IsTradingDay(t time.Time) bool {
	switch t.UTC().Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return true
}

// NextTradingDay returns midnight UTC of the first trading day at or after t.
func (tc *TradingCalendar) NextTradingDay(t time.Time) time.Time {
	d := truncateDay(t)
	for !tc.IsTradingDay(d) {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// TradingDays returns n consecutive trading days starting at or after start.
func (tc *TradingCalendar) TradingDays(start time.Time, n int) []time.Time {
	days := make([]time.Time, 0, max(n, 0))
	d := tc.NextTradingDay(start)
	for len(days) < n {
		days = append(days, d)
		d = tc.NextTradingDay(d.AddDate(0, 0, 1))
	}
	return days
}

// LookbackStart returns the earliest day from which end still has n trading
// days, inclusive of end when it is itself a trading day.
func (tc *TradingCalendar) LookbackStart(end time.Time, n int) time.Time {
	d := truncateDay(end)
	count := 0
	for {
		if tc.IsTradingDay(d) {
			count++
			if count >= n {
				return d
			}
		}
		d = d.AddDate(0, 0, -1)
	}
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
