package model

// Equipment is one physically trackable asset owned by a unit.
type Equipment struct {
	Record
	UnitID            string `json:"unit_id"`
	NSN               string `json:"nsn"`
	Nomenclature      string `json:"nomenclature"`
	SerialNumber      string `json:"serial_number,omitempty"`
	StockNumber       string `json:"stock_number,omitempty"`
	Location          string `json:"location,omitempty"`
	HolderID          string `json:"holder_id,omitempty"`
	MaintenanceStatus string `json:"maintenance_status"`
	IsGrouped         bool   `json:"is_grouped"`
	GroupID           string `json:"group_id,omitempty"`
}

// Maintenance statuses.
const (
	MaintenanceOperational       = "OPERATIONAL"
	MaintenanceDegraded          = "DEGRADED"
	MaintenanceNonMissionCapable = "NON_MISSION_CAPABLE"
	MaintenanceInMaintenance     = "IN_MAINTENANCE"
)

// EquipmentGroup is a kit that equipment can be grouped under.
type EquipmentGroup struct {
	Record
	UnitID string `json:"unit_id"`
	Name   string `json:"name"`
}
