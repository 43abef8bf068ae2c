// Package manila implements provision.Client over the OpenStack
// shared file systems v2 API.
package manila

import (
	"context"

	"github.com/denismitr/migcheck/provision"
	"github.com/gophercloud/gophercloud"
	"github.com/gophercloud/gophercloud/openstack/sharedfilesystems/v2/securityservices"
	"github.com/gophercloud/gophercloud/openstack/sharedfilesystems/v2/sharenetworks"
	"github.com/gophercloud/gophercloud/openstack/sharedfilesystems/v2/shares"
	"github.com/gophercloud/gophercloud/openstack/sharedfilesystems/v2/sharetypes"
	"github.com/gophercloud/gophercloud/openstack/sharedfilesystems/v2/snapshots"
	"github.com/pkg/errors"
)

const DefaultShareProtocol = "nfs"

type Client struct {
	sc *gophercloud.ServiceClient
}

var _ provision.Client = (*Client)(nil)

// New wraps an authenticated shared file systems service client,
// e.g. one made by openstack.NewSharedFileSystemV2
func New(sc *gophercloud.ServiceClient) *Client {
	return &Client{sc: sc}
}

func (c *Client) CreateShare(ctx context.Context, opts provision.ShareOpts) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	proto := opts.Protocol
	if proto == "" {
		proto = DefaultShareProtocol
	}

	size := opts.Size
	if size <= 0 {
		size = 1
	}

	s, err := shares.Create(c.sc, shares.CreateOpts{
		ShareProto:     proto,
		Size:           size,
		Name:           opts.Name,
		Description:    opts.Description,
		ShareNetworkID: opts.ShareNetworkID,
		SnapshotID:     opts.SnapshotID,
		ShareType:      opts.ShareType,
		Metadata:       opts.Metadata,
	}).Extract()
	if err != nil {
		return "", mapErr(err)
	}

	return s.ID, nil
}

func (c *Client) DeleteShare(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return mapErr(shares.Delete(c.sc, id).ExtractErr())
}

func (c *Client) CreateSnapshot(ctx context.Context, opts provision.SnapshotOpts) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s, err := snapshots.Create(c.sc, snapshots.CreateOpts{
		ShareID:     opts.ShareID,
		Name:        opts.Name,
		Description: opts.Description,
	}).Extract()
	if err != nil {
		return "", mapErr(err)
	}

	return s.ID, nil
}

func (c *Client) DeleteSnapshot(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return mapErr(snapshots.Delete(c.sc, id).ExtractErr())
}

func (c *Client) CreateShareNetwork(ctx context.Context, opts provision.ShareNetworkOpts) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	sn, err := sharenetworks.Create(c.sc, sharenetworks.CreateOpts{
		Name:            opts.Name,
		Description:     opts.Description,
		NeutronNetID:    opts.NeutronNetID,
		NeutronSubnetID: opts.NeutronSubnetID,
	}).Extract()
	if err != nil {
		return "", mapErr(err)
	}

	return sn.ID, nil
}

func (c *Client) DeleteShareNetwork(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return mapErr(sharenetworks.Delete(c.sc, id).ExtractErr())
}

func (c *Client) ListShareNetworks(ctx context.Context) ([]provision.ShareNetwork, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pages, err := sharenetworks.ListDetail(c.sc, nil).AllPages()
	if err != nil {
		return nil, mapErr(err)
	}

	networks, err := sharenetworks.ExtractShareNetworks(pages)
	if err != nil {
		return nil, errors.Wrap(err, "could not extract share networks")
	}

	result := make([]provision.ShareNetwork, 0, len(networks))
	for _, sn := range networks {
		result = append(result, provision.ShareNetwork{
			ID:              sn.ID,
			Name:            sn.Name,
			NeutronNetID:    sn.NeutronNetID,
			NeutronSubnetID: sn.NeutronSubnetID,
		})
	}

	return result, nil
}

func (c *Client) CreateSecurityService(ctx context.Context, opts provision.SecurityServiceOpts) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ssType := opts.Type
	if ssType == "" {
		ssType = provision.DefaultSecurityServiceType
	}

	ss, err := securityservices.Create(c.sc, securityservices.CreateOpts{
		Type:        securityservices.SecurityServiceType(ssType),
		Name:        opts.Name,
		Description: opts.Description,
		DNSIP:       opts.DNSIP,
		Server:      opts.Server,
		Domain:      opts.Domain,
		User:        opts.User,
		Password:    opts.Password,
	}).Extract()
	if err != nil {
		return "", mapErr(err)
	}

	return ss.ID, nil
}

func (c *Client) DeleteSecurityService(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return mapErr(securityservices.Delete(c.sc, id).ExtractErr())
}

// CreateVolumeType creates a share type, extra specs other than
// driver_handles_share_servers are set with a second request
func (c *Client) CreateVolumeType(ctx context.Context, opts provision.VolumeTypeOpts) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	st, err := sharetypes.Create(c.sc, sharetypes.CreateOpts{
		Name:     opts.Name,
		IsPublic: true,
		ExtraSpecs: sharetypes.ExtraSpecsOpts{
			DriverHandlesShareServers: opts.DriverHandlesShareServers,
		},
	}).Extract()
	if err != nil {
		return "", mapErr(err)
	}

	if len(opts.ExtraSpecs) > 0 {
		specs := make(map[string]interface{}, len(opts.ExtraSpecs))
		for k, v := range opts.ExtraSpecs {
			specs[k] = v
		}

		err := sharetypes.SetExtraSpecs(c.sc, st.ID, sharetypes.SetExtraSpecsOpts{ExtraSpecs: specs}).Err
		if err != nil {
			return st.ID, errors.Wrapf(mapErr(err), "could not set extra specs of share type [%s]", st.ID)
		}
	}

	return st.ID, nil
}

func (c *Client) DeleteVolumeType(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return mapErr(sharetypes.Delete(c.sc, id).ExtractErr())
}

// Status reports the status of shares and snapshots,
// other kinds have no status to wait for
func (c *Client) Status(ctx context.Context, kind provision.Kind, id string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	switch kind {
	case provision.KindShare:
		s, err := shares.Get(c.sc, id).Extract()
		if err != nil {
			return "", mapErr(err)
		}
		return s.Status, nil
	case provision.KindSnapshot:
		s, err := snapshots.Get(c.sc, id).Extract()
		if err != nil {
			return "", mapErr(err)
		}
		return s.Status, nil
	}

	return "", errors.Wrapf(provision.ErrUnknownKind, "%s has no status", kind)
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}

	var notFound gophercloud.ErrDefault404
	if errors.As(err, &notFound) {
		return errors.Wrap(provision.ErrNotFound, err.Error())
	}

	var unauthorized gophercloud.ErrDefault401
	if errors.As(err, &unauthorized) {
		return errors.Wrap(provision.ErrUnauthorized, err.Error())
	}

	var forbidden gophercloud.ErrDefault403
	if errors.As(err, &forbidden) {
		return errors.Wrap(provision.ErrUnauthorized, err.Error())
	}

	return err
}
