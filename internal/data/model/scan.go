package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/defenseunicorns/uds-preflight-scan/pkg/types"
)

// ScanRun is one invocation of the scanner against a set of images.
type ScanRun struct {
	ID          uint          `json:"ID" gorm:"primaryKey;autoIncrement"`
	CreatedAt   time.Time     `json:"CreatedAt" gorm:"autoCreateTime"`
	StartedAt   time.Time     `json:"StartedAt" gorm:"index"`
	FQDN        string        `json:"FQDN"`
	Namespace   string        `json:"Namespace"`
	Mode        string        `json:"Mode"`
	Elapsed     time.Duration `json:"Elapsed"`
	ImageCount  int           `json:"ImageCount"`
	FailedCount int           `json:"FailedCount"`
	Images      []ImageScan   `json:"Images" gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE"`
}

// ImageScan is the outcome of scanning a single image within a run.
type ImageScan struct {
	ID            uint            `json:"ID" gorm:"primaryKey;autoIncrement"`
	RunID         uint            `json:"RunID" gorm:"index"`
	Name          string          `json:"Name"`
	Tag           string          `json:"Tag"`
	InspectRef    string          `json:"InspectRef"`
	Verdict       string          `json:"Verdict"`
	Elapsed       time.Duration   `json:"Elapsed"`
	Error         string          `json:"Error"`
	ModifiedFiles JSONStringArray `json:"ModifiedFiles" gorm:"type:text"`
	Results       []TestResult    `json:"Results" gorm:"foreignKey:ImageScanID;constraint:OnDelete:CASCADE"`
}

// TestResult is one test case row of an image scan.
type TestResult struct {
	ID          uint   `json:"ID" gorm:"primaryKey;autoIncrement"`
	ImageScanID uint   `json:"ImageScanID" gorm:"index"`
	TestCase    string `json:"TestCase"`
	Status      string `json:"Status"`
}

// RunInfo describes how a run was started.
type RunInfo struct {
	FQDN      string
	Namespace string
	Mode      string
	StartedAt time.Time
	Elapsed   time.Duration
}

// JSONStringArray custom type for handling JSON serialization of string arrays.
type JSONStringArray []string

// Value implements the driver.Valuer interface for database serialization.
func (j JSONStringArray) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (j *JSONStringArray) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*j = nil
		return nil
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	default:
		return fmt.Errorf("JSONStringArray Scan error: expected []byte or string, got %T", value)
	}
}

// NewScanRun builds the persisted form of a run from its image results.
func NewScanRun(info RunInfo, results []*types.ImageScanResult) *ScanRun {
	run := &ScanRun{
		StartedAt:  info.StartedAt,
		FQDN:       info.FQDN,
		Namespace:  info.Namespace,
		Mode:       info.Mode,
		Elapsed:    info.Elapsed,
		ImageCount: len(results),
		Images:     make([]ImageScan, 0, len(results)),
	}
	for _, res := range results {
		if res.Failed() {
			run.FailedCount++
		}
		run.Images = append(run.Images, newImageScan(res))
	}
	return run
}

func newImageScan(res *types.ImageScanResult) ImageScan {
	img := ImageScan{
		Name:       res.Target.Name,
		Tag:        res.Target.Tag,
		InspectRef: res.Target.InspectRef,
		Verdict:    string(res.Verdict),
		Elapsed:    res.Elapsed,
		Results:    make([]TestResult, 0, len(res.Rows)),
	}
	switch {
	case res.Err != nil:
		img.Error = res.Err.Error()
	case res.ExitErr != nil:
		img.Error = res.ExitErr.Error()
	}
	for _, row := range res.Rows {
		if row.ModifiedFiles != "" {
			img.ModifiedFiles = strings.Split(row.ModifiedFiles, ":")
		}
		img.Results = append(img.Results, TestResult{
			TestCase: row.TestCase,
			Status:   string(row.Status),
		})
	}
	return img
}
