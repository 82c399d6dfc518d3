package asset

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

var (
	// ErrInvalidFileName is returned when a file name does not follow
	// NAME_YYYYMMDD.tif or NAME_YYYYMMDD.tiff.
	ErrInvalidFileName = errors.New("invalid file name")

	// ErrFutureDate is returned when the acquisition date in a file name
	// lies after the current day.
	ErrFutureDate = errors.New("acquisition date is in the future")
)

var fileNamePattern = regexp.MustCompile(`^(.+)_(\d{8})\.(?i:tiff?)$`)

const fileNameDateLayout = "20060102"

// FileName is a file name that passed the upload gate.
type FileName struct {
	Name       string
	Product    string
	AcquiredOn time.Time
}

// ParseFileName checks name against the NAME_YYYYMMDD.tif|.tiff
// convention. The date must be a real calendar date no later than now.
func ParseFileName(name string, now time.Time) (FileName, error) {
	m := fileNamePattern.FindStringSubmatch(name)
	if m == nil {
		return FileName{}, fmt.Errorf("%w: %q must look like NAME_YYYYMMDD.tif", ErrInvalidFileName, name)
	}

	date, err := time.Parse(fileNameDateLayout, m[2])
	if err != nil {
		return FileName{}, fmt.Errorf("%w: %q has no valid date: %v", ErrInvalidFileName, name, err)
	}

	y, mo, d := now.Date()
	today := time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
	if date.After(today) {
		return FileName{}, fmt.Errorf("%w: %s", ErrFutureDate, date.Format(time.DateOnly))
	}

	return FileName{Name: name, Product: m[1], AcquiredOn: date}, nil
}
