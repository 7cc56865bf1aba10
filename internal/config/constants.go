package config

// Ports used on cluster hosts.
const (
	SSHPort            = 22
	TunnelPort         = 22000 // NAT port forwarded to the controller's SSH port
	MesosPort          = 5050
	MarathonPort       = 8080
	CentralLoggingPort = 8081
)

// Instance types of the infrastructure roles.
const (
	NATInstanceType            = "t2.micro"
	ControllerInstanceType     = "t2.small"
	CentralLoggingInstanceType = "t2.small"
)

// Storage.
const (
	ControllerRootVolumeGB = 10
	SharedVolumeGB         = 20
	SharedVolumePath       = "/home/data/"
	SharedVolumeDevice     = "/dev/sdf"
)

// Local state layout under Config.StateDir.
const (
	DefaultConfigFile     = "~/.clusterous.yml"
	DefaultStateDir       = "~/.clusterous"
	ClusterInfoFile       = "cluster_info.yml"
	CurrentControllerFile = "current_controller"
	SessionDir            = "session"
	RemoteKeyFile         = "key.pem"
	RemoteScriptsDir      = "clusterous"
	RegistryS3Path        = "/docker-registry"
)

// Playbooks run against the cluster after the instances converge.
const (
	PlaybookController     = "01_configure_controller.yml"
	PlaybookCentralLogging = "configure_central_logging.yml"
	PlaybookNodes          = "configure_nodes.yml"
)
