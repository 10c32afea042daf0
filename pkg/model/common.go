// Package model 定义排课引擎的核心数据模型
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout 日期格式
const DateLayout = "2006-01-02"

// Weekday 星期
type Weekday string

const (
	Monday    Weekday = "Monday"
	Tuesday   Weekday = "Tuesday"
	Wednesday Weekday = "Wednesday"
	Thursday  Weekday = "Thursday"
	Friday    Weekday = "Friday"
	Saturday  Weekday = "Saturday"
	Sunday    Weekday = "Sunday"
)

// AllWeekdays 一周七天（周一开始）
var AllWeekdays = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

// DefaultTeachingDays 默认教学日
var DefaultTeachingDays = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday}

// Order 返回星期序号，周一为1，非法值为0
func (d Weekday) Order() int {
	for i, w := range AllWeekdays {
		if w == d {
			return i + 1
		}
	}
	return 0
}

// Valid 检查星期是否合法
func (d Weekday) Valid() bool {
	return d.Order() > 0
}

// WeekdayOf 返回日期对应的星期
func WeekdayOf(t time.Time) Weekday {
	// time.Weekday 以周日为0
	idx := (int(t.Weekday()) + 6) % 7
	return AllWeekdays[idx]
}

// ParseDate 解析 2006-01-02 格式日期
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// WeekBounds 返回日期所在周的周一和周日
func WeekBounds(date time.Time) (time.Time, time.Time) {
	offset := WeekdayOf(date).Order() - 1
	monday := date.AddDate(0, 0, -offset)
	return monday, monday.AddDate(0, 0, 6)
}

// Clock 一天中的时刻，单位：分钟
type Clock int

// NewClock 由时、分创建时刻
func NewClock(hour, minute int) Clock {
	return Clock(hour*60 + minute)
}

// ParseClock 解析 HH:MM 或 HH:MM:SS
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("无效的时间格式: %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("无效的小时: %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("无效的分钟: %q", s)
	}
	return NewClock(h, m), nil
}

// MustClock 解析时刻，失败时 panic，仅用于常量初始化和测试
func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

// String 返回 HH:MM
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Add 增加分钟数
func (c Clock) Add(minutes int) Clock {
	return c + Clock(minutes)
}

// MarshalJSON 实现 json.Marshaler
func (c Clock) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON 实现 json.Unmarshaler
func (c *Clock) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Value 实现 driver.Valuer
func (c Clock) Value() (driver.Value, error) {
	return c.String(), nil
}

// Scan 实现 sql.Scanner，兼容 TIME 列
func (c *Clock) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		parsed, err := ParseClock(v)
		if err != nil {
			return err
		}
		*c = parsed
	case []byte:
		parsed, err := ParseClock(string(v))
		if err != nil {
			return err
		}
		*c = parsed
	case time.Time:
		*c = NewClock(v.Hour(), v.Minute())
	case nil:
		*c = 0
	default:
		return fmt.Errorf("无法将 %T 转换为 Clock", src)
	}
	return nil
}

// Interval 时间区间 [Start, End)
type Interval struct {
	Start Clock `json:"start"`
	End   Clock `json:"end"`
}

// Minutes 返回区间长度
func (i Interval) Minutes() int {
	return int(i.End - i.Start)
}

// Overlaps 检查两个区间是否重叠
func (i Interval) Overlaps(other Interval) bool {
	return i.Start < other.End && other.Start < i.End
}

// Label 返回 "HH:MM-HH:MM"
func (i Interval) Label() string {
	return i.Start.String() + "-" + i.End.String()
}
