package services

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/6tail/lunar-go/HolidayUtil"
	"github.com/6tail/lunar-go/calendar"
	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/at"
	"github.com/rickar/cal/v2/au"
	"github.com/rickar/cal/v2/be"
	"github.com/rickar/cal/v2/br"
	"github.com/rickar/cal/v2/ca"
	"github.com/rickar/cal/v2/ch"
	"github.com/rickar/cal/v2/de"
	"github.com/rickar/cal/v2/dk"
	"github.com/rickar/cal/v2/es"
	"github.com/rickar/cal/v2/fi"
	"github.com/rickar/cal/v2/fr"
	"github.com/rickar/cal/v2/gb"
	"github.com/rickar/cal/v2/ie"
	"github.com/rickar/cal/v2/it"
	"github.com/rickar/cal/v2/jp"
	"github.com/rickar/cal/v2/nl"
	"github.com/rickar/cal/v2/no"
	"github.com/rickar/cal/v2/nz"
	"github.com/rickar/cal/v2/pl"
	"github.com/rickar/cal/v2/pt"
	"github.com/rickar/cal/v2/se"
	"github.com/rickar/cal/v2/us"
)

const (
	// CalendarWeekdays rejects weekends only.
	CalendarWeekdays = "NONE"
	// CalendarChina uses the official CN holiday and make-up workday table.
	CalendarChina = "CN"
)

// WorkCalendar answers whether a date is a working day in a country.
type WorkCalendar struct {
	calendars map[string]*cal.BusinessCalendar
}

func NewWorkCalendar() *WorkCalendar {
	c := &WorkCalendar{
		calendars: make(map[string]*cal.BusinessCalendar),
	}
	c.add("US", "United States", us.Holidays...)
	c.add("GB", "United Kingdom", gb.Holidays...)
	c.add("DE", "Germany", de.Holidays...)
	c.add("FR", "France", fr.Holidays...)
	c.add("JP", "Japan", jp.Holidays...)
	c.add("AU", "Australia", au.HolidaysNSW...)
	c.add("CA", "Canada", ca.Holidays...)
	c.add("NZ", "New Zealand", nz.Holidays...)
	c.add("IT", "Italy", it.Holidays...)
	c.add("ES", "Spain", es.Holidays...)
	c.add("NL", "Netherlands", nl.Holidays...)
	c.add("BE", "Belgium", be.Holidays...)
	c.add("AT", "Austria", at.Holidays...)
	c.add("CH", "Switzerland", ch.Holidays...)
	c.add("SE", "Sweden", se.Holidays...)
	c.add("NO", "Norway", no.Holidays...)
	c.add("DK", "Denmark", dk.Holidays...)
	c.add("FI", "Finland", fi.Holidays...)
	c.add("PL", "Poland", pl.Holidays...)
	c.add("PT", "Portugal", pt.Holidays...)
	c.add("IE", "Ireland", ie.Holidays...)
	c.add("BR", "Brazil", br.Holidays...)
	return c
}

func (c *WorkCalendar) add(code, name string, holidays ...*cal.Holiday) {
	bc := cal.NewBusinessCalendar()
	bc.Name = name
	bc.AddHoliday(holidays...)
	c.calendars[code] = bc
}

// Supports reports whether country has a calendar. Weekdays-only and China
// are always supported.
func (c *WorkCalendar) Supports(country string) bool {
	country = strings.ToUpper(country)
	if country == CalendarWeekdays || country == CalendarChina {
		return true
	}
	_, ok := c.calendars[country]
	return ok
}

// Countries lists the supported country codes.
func (c *WorkCalendar) Countries() []string {
	codes := []string{CalendarChina, CalendarWeekdays}
	for code := range c.calendars {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// IsWorkday checks t's calendar date as seen in t's own location.
func (c *WorkCalendar) IsWorkday(t time.Time, country string) bool {
	country = strings.ToUpper(country)
	if country == CalendarChina {
		return isWorkdayChina(t)
	}
	bc, ok := c.calendars[country]
	if !ok {
		return !cal.IsWeekend(t)
	}
	return bc.IsWorkday(t)
}

// HolidayName returns the name of the holiday on t, if any.
func (c *WorkCalendar) HolidayName(t time.Time, country string) string {
	country = strings.ToUpper(country)
	if country == CalendarChina {
		solar := calendar.NewSolarFromDate(t)
		if h := HolidayUtil.GetHolidayByYmd(solar.GetYear(), solar.GetMonth(), solar.GetDay()); h != nil && !h.IsWork() {
			return h.GetName()
		}
		return ""
	}
	bc, ok := c.calendars[country]
	if !ok {
		return ""
	}
	if actual, observed, h := bc.IsHoliday(t); (actual || observed) && h != nil {
		return h.Name
	}
	return ""
}

func isWorkdayChina(t time.Time) bool {
	solar := calendar.NewSolarFromDate(t)
	holiday := HolidayUtil.GetHolidayByYmd(solar.GetYear(), solar.GetMonth(), solar.GetDay())
	if holiday != nil {
		return holiday.IsWork()
	}
	weekday := t.Weekday()
	return weekday != time.Saturday && weekday != time.Sunday
}

// describeClosedDay explains why t is not a working day.
func (c *WorkCalendar) describeClosedDay(t time.Time, country string) string {
	if name := c.HolidayName(t, country); name != "" {
		return fmt.Sprintf("%s is a public holiday (%s)", t.Format("2006-01-02"), name)
	}
	return fmt.Sprintf("%s is not a working day", t.Format("2006-01-02"))
}
