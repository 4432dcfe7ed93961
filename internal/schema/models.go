package schema

import "time"

// Table names in drop order: the fact table first, then its dimensions.
const (
	TableComplaints     = "complaints"
	TableLocations      = "locations"
	TableComplaintTypes = "complaint_types"
	TableStatuses       = "statuses"
)

var Tables = []string{TableComplaints, TableLocations, TableComplaintTypes, TableStatuses}

type Status struct {
	ID        int64     `gorm:"primaryKey;column:id" json:"id"`
	Name      string    `gorm:"column:name" json:"name"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime:false" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime:false" json:"updated_at"`
}

func (Status) TableName() string { return TableStatuses }

type ComplaintType struct {
	ID        int64     `gorm:"primaryKey;column:id" json:"id"`
	Name      string    `gorm:"column:name" json:"name"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime:false" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime:false" json:"updated_at"`
}

func (ComplaintType) TableName() string { return TableComplaintTypes }

// Location is a coordinate/administrative snapshot. Rows are shared only
// between records carrying exactly the same tuple (see Fingerprint).
type Location struct {
	ID             int64     `gorm:"primaryKey;column:id" json:"id"`
	Borough        string    `gorm:"column:borough" json:"borough"`
	City           *string   `gorm:"column:city" json:"city,omitempty"`
	Zip            *string   `gorm:"column:zip" json:"zip,omitempty"`
	Latitude       *float64  `gorm:"column:latitude" json:"latitude,omitempty"`
	Longitude      *float64  `gorm:"column:longitude" json:"longitude,omitempty"`
	RawCoordinates *string   `gorm:"column:raw_coordinates" json:"raw_coordinates,omitempty"`
	LocationType   *string   `gorm:"column:location_type" json:"location_type,omitempty"`
	Fingerprint    string    `gorm:"column:fingerprint" json:"-"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime:false" json:"created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime:false" json:"updated_at"`
}

func (Location) TableName() string { return TableLocations }

type Complaint struct {
	ID              int64      `gorm:"primaryKey;column:id" json:"id"`
	UniqueKey       string     `gorm:"column:unique_key" json:"unique_key"`
	CreatedDate     time.Time  `gorm:"column:created_date" json:"created_date"`
	ClosedDate      *time.Time `gorm:"column:closed_date" json:"closed_date,omitempty"`
	StatusID        int64      `gorm:"column:status_id" json:"status_id"`
	ComplaintTypeID int64      `gorm:"column:complaint_type_id" json:"complaint_type_id"`
	LocationID      int64      `gorm:"column:location_id" json:"location_id"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime:false" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;autoUpdateTime:false" json:"updated_at"`
}

func (Complaint) TableName() string { return TableComplaints }

// TableCounts is a row-count snapshot of the four tables.
type TableCounts struct {
	Statuses       int64 `json:"statuses"`
	ComplaintTypes int64 `json:"complaint_types"`
	Locations      int64 `json:"locations"`
	Complaints     int64 `json:"complaints"`
}

func (c TableCounts) Total() int64 {
	return c.Statuses + c.ComplaintTypes + c.Locations + c.Complaints
}
