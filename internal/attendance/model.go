package attendance

import (
	"math"
	"time"
)

// Statuses.
const (
	StatusPresent = "present"
	StatusAbsent  = "absent"
	StatusLate    = "late"
)

// DefaultModifyWindowDays is how long after the class a status may change.
const DefaultModifyWindowDays = 7

// Modification is one entry of a record's audit trail.
type Modification struct {
	PreviousStatus string    `json:"previousStatus"`
	NewStatus      string    `json:"newStatus"`
	ModifiedBy     string    `json:"modifiedBy"`
	ModifiedAt     time.Time `json:"modifiedAt"`
	Reason         string    `json:"reason,omitempty"`
}

// Record is one student's attendance for one scheduled class occurrence.
// Date is local midnight of the class day.
type Record struct {
	ID                  string         `json:"id"`
	StudentID           string         `json:"student"`
	SubjectID           string         `json:"subject"`
	Date                time.Time      `json:"date"`
	StartTime           string         `json:"startTime"`
	EndTime             string         `json:"endTime"`
	Status              string         `json:"status"`
	MarkedBy            string         `json:"markedBy"`
	MarkedAt            time.Time      `json:"markedAt"`
	ClassType           string         `json:"classType"`
	AcademicYear        string         `json:"academicYear,omitempty"`
	ModificationHistory []Modification `json:"modificationHistory"`
}

// CanModify reports whether the class date is within windowDays of now,
// counting partial days as whole ones.
func (r Record) CanModify(now time.Time, windowDays int) bool {
	diff := now.Sub(r.Date)
	if diff < 0 {
		diff = -diff
	}
	days := int(math.Ceil(diff.Hours() / 24))
	return days <= windowDays
}

// ModifyStatus changes the status and appends an audit entry. It does not
// consult CanModify; callers enforce the window. Reports whether anything changed.
func (r *Record) ModifyStatus(newStatus, by, reason string, at time.Time) bool {
	if newStatus == r.Status {
		return false
	}
	r.ModificationHistory = append(r.ModificationHistory, Modification{
		PreviousStatus: r.Status,
		NewStatus:      newStatus,
		ModifiedBy:     by,
		ModifiedAt:     at,
		Reason:         reason,
	})
	r.Status = newStatus
	return true
}

// Counts aggregates statuses. PresentCount+AbsentCount+LateCount == TotalClasses.
type Counts struct {
	TotalClasses         int     `json:"totalClasses"`
	PresentCount         int     `json:"presentCount"`
	AbsentCount          int     `json:"absentCount"`
	LateCount            int     `json:"lateCount"`
	AttendancePercentage float64 `json:"attendancePercentage"`
}

func (c *Counts) add(status string) {
	switch status {
	case StatusPresent:
		c.PresentCount++
	case StatusAbsent:
		c.AbsentCount++
	case StatusLate:
		c.LateCount++
	default:
		return
	}
	c.TotalClasses++
	c.AttendancePercentage = Percentage(c.PresentCount, c.TotalClasses)
}

// Percentage is n/total as a percentage rounded to 2 decimals; 0 when total is 0.
func Percentage(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*100*100) / 100
}

// SubjectSummary is a student's attendance in one subject.
type SubjectSummary struct {
	SubjectID string `json:"subject"`
	Counts
}

// StudentSummary is one student's attendance within a subject summary.
type StudentSummary struct {
	StudentID string `json:"student"`
	Counts
}

// DailyCount tallies one calendar day.
type DailyCount struct {
	Date    string `json:"date"`
	Present int    `json:"present"`
	Absent  int    `json:"absent"`
	Late    int    `json:"late"`
	Total   int    `json:"total"`
}

// TrendPoint is one day of a student's attendance trend.
type TrendPoint struct {
	Date                 string  `json:"date"`
	TotalClasses         int     `json:"totalClasses"`
	PresentCount         int     `json:"presentCount"`
	AttendancePercentage float64 `json:"attendancePercentage"`
}

// Change is published after a record is created or its status changes.
type Change struct {
	RecordID  string    `json:"recordId"`
	StudentID string    `json:"studentId"`
	SubjectID string    `json:"subjectId"`
	Status    string    `json:"status"`
	Date      time.Time `json:"date"`
}
