package provision

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

const DefaultSecurityServiceType = "ldap"

type ShareOpts struct {
	Protocol       string
	Size           int
	Name           string
	Description    string
	ShareNetworkID string
	SnapshotID     string
	ShareType      string
	Metadata       map[string]string
}

type SnapshotOpts struct {
	ShareID     string
	Name        string
	Description string
	Force       bool
}

type ShareNetworkOpts struct {
	Name            string
	Description     string
	NeutronNetID    string
	NeutronSubnetID string
}

type SecurityServiceOpts struct {
	Type        string
	Name        string
	Description string
	DNSIP       string
	Server      string
	Domain      string
	User        string
	Password    string
}

type VolumeTypeOpts struct {
	Name                      string
	DriverHandlesShareServers bool
	ExtraSpecs                map[string]string
}

type ShareNetwork struct {
	ID              string
	Name            string
	NeutronNetID    string
	NeutronSubnetID string
}

// Client is the part of a share service API the provisioner needs.
// Delete methods return ErrNotFound or ErrUnauthorized (possibly wrapped)
// for resources that are gone or hidden from the caller.
type Client interface {
	CreateShare(ctx context.Context, opts ShareOpts) (string, error)
	DeleteShare(ctx context.Context, id string) error
	CreateSnapshot(ctx context.Context, opts SnapshotOpts) (string, error)
	DeleteSnapshot(ctx context.Context, id string) error
	CreateShareNetwork(ctx context.Context, opts ShareNetworkOpts) (string, error)
	DeleteShareNetwork(ctx context.Context, id string) error
	ListShareNetworks(ctx context.Context) ([]ShareNetwork, error)
	CreateSecurityService(ctx context.Context, opts SecurityServiceOpts) (string, error)
	DeleteSecurityService(ctx context.Context, id string) error
	CreateVolumeType(ctx context.Context, opts VolumeTypeOpts) (string, error)
	DeleteVolumeType(ctx context.Context, id string) error
	Status(ctx context.Context, kind Kind, id string) (string, error)
}

func GenerateShareNetworkData() ShareNetworkOpts {
	return ShareNetworkOpts{
		Name:            RandName("sn-name"),
		Description:     RandName("sn-desc"),
		NeutronNetID:    RandName("net-id"),
		NeutronSubnetID: RandName("subnet-id"),
	}
}

func GenerateSecurityServiceData() SecurityServiceOpts {
	return SecurityServiceOpts{
		Type:        DefaultSecurityServiceType,
		Name:        RandName("ss-name"),
		Description: RandName("ss-desc"),
		DNSIP:       RandName("ss-dns_ip"),
		Server:      RandName("ss-server"),
		Domain:      RandName("ss-domain"),
		User:        RandName("ss-user"),
		Password:    RandName("ss-password"),
	}
}

// RandName appends a random suffix to prefix, e.g. sn-name-3f2a9c1d
func RandName(prefix string) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	if prefix == "" {
		return suffix
	}

	return prefix + "-" + suffix
}
