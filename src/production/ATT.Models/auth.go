package attmodels

// StorageKeyDeviceID is the key under which the device identifier is persisted
const StorageKeyDeviceID = "telefono_id"

// Login statuses and roles returned by the server
const (
	LoginStatusSuccess = "success"
	RoleProfesor       = "profesor"
)

// Post-login destinations
const (
	DashboardProfesor = "/dashboard_profesor"
	DashboardAlumno   = "/dashboard_alumno"
)

// LoginRequest is the body of the device login call
type LoginRequest struct {
	TelefonoID string `json:"telefono_id"`
}

// LoginResponse is what the server answers to a device login
type LoginResponse struct {
	Status  string `json:"status"`
	Rol     string `json:"rol"`
	Message string `json:"message,omitempty"`
}

// Succeeded reports whether the login was accepted
func (r LoginResponse) Succeeded() bool {
	return r.Status == LoginStatusSuccess
}

// Destination returns the dashboard for the returned role
func (r LoginResponse) Destination() string {
	if r.Rol == RoleProfesor {
		return DashboardProfesor
	}
	return DashboardAlumno
}
