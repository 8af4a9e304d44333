package conventions

import "path/filepath"

const (
	// DefaultDataDir is the default devagent data directory name (relative to home).
	DefaultDataDir = ".devagent"
	// ServiceConfigsDir is the subdirectory holding one record file per service.
	ServiceConfigsDir = "service-configs"
	// QueueFile is the filename of the persisted task queue.
	QueueFile = "auto-dev-tasks.json"
	// DBFile is the SQLite database filename.
	DBFile = "devagent.db"

	// Scaffolded service layout.

	// FeaturesDir is the directory inside a service where feature notes are written.
	FeaturesDir = "features"
	// FrontendDir is the frontend subtree of a fullstack service.
	FrontendDir = "frontend"
	// BackendDir is the backend subtree of a fullstack service.
	BackendDir = "backend"

	// Hub registration.

	// DefaultHubURL is the default Integration Hub base URL.
	DefaultHubURL = "http://localhost:5003"
	// HubRegisterPath is the Integration Hub module registration endpoint.
	HubRegisterPath = "/api/modules/register"
	// FrontendPort is the port frontend services are registered with.
	FrontendPort = 3000
	// BackendPort is the port backend and fullstack services are registered with.
	BackendPort = 5000
)

// ServiceConfigDir returns the directory of the service records.
func ServiceConfigDir(dataDir string) string {
	return filepath.Join(dataDir, ServiceConfigsDir)
}

// QueuePath returns the path of the persisted task queue file.
func QueuePath(dataDir string) string {
	return filepath.Join(dataDir, QueueFile)
}

// DBPath returns the path of the SQLite database.
func DBPath(dataDir string) string {
	return filepath.Join(dataDir, DBFile)
}

// ServiceDir returns the directory where a service is scaffolded.
func ServiceDir(workspace, name string) string {
	return filepath.Join(workspace, name)
}
