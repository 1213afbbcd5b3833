package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule determines when the next run happens.
type Schedule interface {
	// Next returns the first run time strictly after from.
	Next(from time.Time) time.Time
}

type every time.Duration

// Every runs at a fixed interval after the previous run ended.
func Every(d time.Duration) Schedule { return every(d) }

func (e every) Next(from time.Time) time.Time { return from.Add(time.Duration(e)) }
func (e every) String() string { return "every " + time.Duration(e).String() }

// clock is a wall-clock time of day, optionally bound to a weekday.
type clock struct {
	weekly bool
	day    time.Weekday
	hour   int
	minute int
	loc    *time.Location
}

// Daily runs at hour:minute UTC every day.
func Daily(hour, minute int) Schedule {
	return DailyIn(hour, minute, time.UTC)
}

// DailyIn is Daily in the given location.
func DailyIn(hour, minute int, loc *time.Location) Schedule {
	return &clock{hour: hour, minute: minute, loc: loc}
}

// Weekly runs at hour:minute UTC on day every week.
func Weekly(day time.Weekday, hour, minute int) Schedule {
	return &clock{weekly: true, day: day, hour: hour, minute: minute, loc: time.UTC}
}

func (c *clock) Next(from time.Time) time.Time {
	from = from.In(c.loc)
	days, step := 0, 1
	if c.weekly {
		days = (int(c.day) - int(from.Weekday()) + 7) % 7
		step = 7
	}
	next := time.Date(from.Year(), from.Month(), from.Day()+days, c.hour, c.minute, 0, 0, c.loc)
	if !next.After(from) {
		next = next.AddDate(0, 0, step)
	}
	return next
}

func (c *clock) String() string {
	at := fmt.Sprintf("%02d:%02d", c.hour, c.minute)
	if c.loc != time.UTC {
		at += " " + c.loc.String()
	}
	if c.weekly {
		return "weekly " + strings.ToLower(c.day.String()[:3]) + " " + at
	}
	return "daily " + at
}

type cronSchedule struct {
	expr  string
	sched cron.Schedule
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseCron parses a five-field cron expression or a descriptor such as
// "@hourly".
func ParseCron(expr string) (Schedule, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return &cronSchedule{expr: expr, sched: sched}, nil
}

// Cron is ParseCron for expressions known to be valid. It panics on a
// malformed expression.
func Cron(expr string) Schedule {
	s, err := ParseCron(expr)
	if err != nil {
		panic(err.Error())
	}
	return s
}

func (s *cronSchedule) Next(from time.Time) time.Time { return s.sched.Next(from) }
func (s *cronSchedule) String() string { return s.expr }

// Parse reads the schedule notations accepted on the command line:
//
//	every 15m
//	daily 02:30
//	weekly sun 04:00
//	0 2 * * 1-5     (cron)
//	@hourly         (cron descriptor)
//
// Daily and weekly times are UTC.
func Parse(spec string) (Schedule, error) {
	fields := strings.Fields(spec)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty schedule")
	}
	switch strings.ToLower(fields[0]) {
	case "every":
		if len(fields) != 2 {
			return nil, fmt.Errorf("schedule %q: want \"every <duration>\"", spec)
		}
		d, err := time.ParseDuration(fields[1])
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("schedule %q: invalid interval %q", spec, fields[1])
		}
		return Every(d), nil
	case "daily":
		if len(fields) != 2 {
			return nil, fmt.Errorf("schedule %q: want \"daily HH:MM\"", spec)
		}
		h, m, err := parseClock(fields[1])
		if err != nil {
			return nil, fmt.Errorf("schedule %q: %w", spec, err)
		}
		return Daily(h, m), nil
	case "weekly":
		if len(fields) != 3 {
			return nil, fmt.Errorf("schedule %q: want \"weekly <day> HH:MM\"", spec)
		}
		day, err := parseWeekday(fields[1])
		if err != nil {
			return nil, fmt.Errorf("schedule %q: %w", spec, err)
		}
		h, m, err := parseClock(fields[2])
		if err != nil {
			return nil, fmt.Errorf("schedule %q: %w", spec, err)
		}
		return Weekly(day, h, m), nil
	}
	return ParseCron(spec)
}

func parseClock(v string) (hour, minute int, err error) {
	hs, ms, ok := strings.Cut(v, ":")
	if ok {
		hour, err = strconv.Atoi(hs)
		if err == nil {
			minute, err = strconv.Atoi(ms)
		}
	}
	if !ok || err != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid time of day %q", v)
	}
	return hour, minute, nil
}

func parseWeekday(v string) (time.Weekday, error) {
	v = strings.ToLower(v)
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if v == name || v == name[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("invalid weekday %q", v)
}
