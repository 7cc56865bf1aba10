package wizard

import (
	"github.com/charmbracelet/huh"

	"github.com/imamik/clusterous/internal/config"
)

// RegionOption represents a provider region.
type RegionOption struct {
	Value       string
	Description string
}

// AWSRegions contains the AWS regions offered by the wizard.
var AWSRegions = []RegionOption{
	{Value: "ap-southeast-2", Description: "Sydney"},
	{Value: "ap-southeast-1", Description: "Singapore"},
	{Value: "ap-northeast-1", Description: "Tokyo"},
	{Value: "us-east-1", Description: "N. Virginia"},
	{Value: "us-west-2", Description: "Oregon"},
	{Value: "eu-west-1", Description: "Ireland"},
	{Value: "eu-central-1", Description: "Frankfurt"},
}

// HCloudLocations contains all valid Hetzner Cloud datacenter locations.
var HCloudLocations = []RegionOption{
	{Value: "nbg1", Description: "Nuremberg, Germany"},
	{Value: "fsn1", Description: "Falkenstein, Germany"},
	{Value: "hel1", Description: "Helsinki, Finland"},
	{Value: "ash", Description: "Ashburn, USA"},
	{Value: "hil", Description: "Hillsboro, USA"},
	{Value: "sin", Description: "Singapore"},
}

// ProviderOptions contains the supported cloud providers.
var ProviderOptions = []huh.Option[string]{
	huh.NewOption("Amazon Web Services", config.ProviderAWS),
	huh.NewOption("Hetzner Cloud", config.ProviderHCloud),
}

// ZoneOptions contains the availability zone suffixes.
var ZoneOptions = []huh.Option[string]{
	huh.NewOption("a", "a"),
	huh.NewOption("b", "b"),
	huh.NewOption("c", "c"),
}

// RegionsFor returns the regions of provider.
func RegionsFor(provider string) []RegionOption {
	if provider == config.ProviderHCloud {
		return HCloudLocations
	}
	return AWSRegions
}

// RegionsToOptions converts RegionOption slice to huh.Option slice.
func RegionsToOptions(regions []RegionOption) []huh.Option[string] {
	opts := make([]huh.Option[string], len(regions))
	for i, r := range regions {
		opts[i] = huh.NewOption(r.Value+" - "+r.Description, r.Value)
	}
	return opts
}
