package models

// Device status values written to the devices collection.
const (
	DeviceStatusAvailable = "Available"
	DeviceStatusInUse     = "In-Use"
	DeviceStatusOccupied  = "Occupied"
)

// Device is a physical terminal registered in the store.
type Device struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	GroupID             string `json:"group"`
	Status              string `json:"status"`
	Token               string `json:"token"`
	ClientRecord        string `json:"client_record"`
	ScreenshotRequested bool   `json:"screenshot_requested"`
}
