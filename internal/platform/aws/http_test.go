package aws

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/clusterous/internal/config"
	"github.com/imamik/clusterous/internal/errdefs"
	"github.com/imamik/clusterous/internal/platform/cloud"
	"github.com/imamik/clusterous/internal/util/labels"
)

// ec2Server answers EC2 query-protocol requests by Action.
type ec2Server struct {
	mu       sync.Mutex
	handlers map[string]func(form map[string][]string) (int, string)
	requests []map[string][]string
}

func (s *ec2Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.requests = append(s.requests, r.PostForm)
	h, ok := s.handlers[r.PostForm.Get("Action")]
	s.mu.Unlock()
	if !ok {
		errorResponse(w, http.StatusBadRequest, "InvalidAction", r.PostForm.Get("Action"))
		return
	}
	status, body := h(r.PostForm)
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func (s *ec2Server) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.requests))
	for _, r := range s.requests {
		out = append(out, r["Action"][0])
	}
	return out
}

// request returns the last request made for action.
func (s *ec2Server) request(action string) map[string][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found map[string][]string
	for _, r := range s.requests {
		if r["Action"][0] == action {
			found = r
		}
	}
	return found
}

func errorBody(code, msg string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<Response><Errors><Error><Code>%s</Code><Message>%s</Message></Error></Errors><RequestID>req-1</RequestID></Response>`, code, msg)
}

func errorResponse(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(errorBody(code, msg)))
}

func newTestClient(t *testing.T, handlers map[string]func(map[string][]string) (int, string)) (*Client, *ec2Server) {
	t.Helper()
	srv := &ec2Server{handlers: handlers}
	server := httptest.NewServer(srv)
	t.Cleanup(server.Close)

	api := ec2.New(ec2.Options{
		Region:       "ap-southeast-2",
		BaseEndpoint: aws.String(server.URL),
		Credentials:  credentials.NewStaticCredentialsProvider("key", "secret", ""),
		Retryer:      aws.NopRetryer{},
	})
	client, err := NewClient(context.Background(), "ap-southeast-2", "", "",
		WithEC2(api), WithTimeouts(config.TestTimeouts()))
	require.NoError(t, err)
	return client, srv
}

func ok(body string) func(map[string][]string) (int, string) {
	return func(map[string][]string) (int, string) { return http.StatusOK, body }
}

func TestListNetworks_FiltersByTags(t *testing.T) {
	t.Parallel()

	client, srv := newTestClient(t, map[string]func(map[string][]string) (int, string){
		"DescribeVpcs": ok(`<DescribeVpcsResponse xmlns="http://ec2.amazonaws.com/doc/2016-11-15/">
<requestId>r</requestId>
<vpcSet><item><vpcId>vpc-1</vpcId><cidrBlock>10.2.0.0/16</cidrBlock>
<tagSet><item><key>Name</key><value>demo-vpc</value></item><item><key>@clusterous</key><value>demo</value></item></tagSet>
</item></vpcSet></DescribeVpcsResponse>`),
	})

	tags := labels.NewTagBuilder("demo").WithName("demo-vpc").Build()
	networks, err := client.ListNetworks(context.Background(), tags)
	require.NoError(t, err)
	require.Len(t, networks, 1)

	assert.Equal(t, "vpc-1", networks[0].ID)
	assert.Equal(t, "demo-vpc", networks[0].Name)
	assert.Equal(t, "10.2.0.0/16", networks[0].CIDR)
	assert.Equal(t, "demo", networks[0].Tags[labels.KeyCluster])

	form := srv.request("DescribeVpcs")
	assert.Equal(t, "tag:@clusterous", form["Filter.1.Name"][0])
	assert.Equal(t, "demo", form["Filter.1.Value.1"][0])
	assert.Equal(t, "tag:Name", form["Filter.2.Name"][0])
	assert.Equal(t, "demo-vpc", form["Filter.2.Value.1"][0])
}

func TestCreateNetwork_TagsAtCreation(t *testing.T) {
	t.Parallel()

	client, srv := newTestClient(t, map[string]func(map[string][]string) (int, string){
		"CreateVpc": ok(`<CreateVpcResponse><requestId>r</requestId>
<vpc><vpcId>vpc-9</vpcId><cidrBlock>10.2.0.0/16</cidrBlock></vpc></CreateVpcResponse>`),
	})

	n, err := client.CreateNetwork(context.Background(), cloud.NetworkRequest{
		CIDR: "10.2.0.0/16",
		Tags: labels.NewTagBuilder("demo").WithName("demo-vpc").Build(),
	})
	require.NoError(t, err)
	assert.Equal(t, "vpc-9", n.ID)

	form := srv.request("CreateVpc")
	assert.Equal(t, "10.2.0.0/16", form["CidrBlock"][0])
	assert.Equal(t, "vpc", form["TagSpecification.1.ResourceType"][0])
	assert.Equal(t, "@clusterous", form["TagSpecification.1.Tag.1.Key"][0])
}

func TestListInstances_StatesAndAddresses(t *testing.T) {
	t.Parallel()

	client, srv := newTestClient(t, map[string]func(map[string][]string) (int, string){
		"DescribeInstances": ok(`<DescribeInstancesResponse><requestId>r</requestId>
<reservationSet><item><reservationId>r-1</reservationId><instancesSet>
<item><instanceId>i-1</instanceId><instanceState><code>16</code><name>running</name></instanceState>
<privateIpAddress>10.2.1.5</privateIpAddress><ipAddress>54.1.2.3</ipAddress>
<placement><availabilityZone>ap-southeast-2a</availabilityZone></placement>
<subnetId>subnet-1</subnetId><instanceType>t2.small</instanceType>
<tagSet><item><key>NodeType</key><value>controller</value></item></tagSet></item>
<item><instanceId>i-2</instanceId><instanceState><code>0</code><name>pending</name></instanceState></item>
</instancesSet></item></reservationSet></DescribeInstancesResponse>`),
	})

	instances, err := client.ListInstances(context.Background(), cloud.InstanceFilter{
		Tags:   labels.Owned("demo"),
		States: cloud.OwnedStates,
	})
	require.NoError(t, err)
	require.Len(t, instances, 2)

	assert.Equal(t, cloud.StateRunning, instances[0].State)
	assert.Equal(t, "10.2.1.5", instances[0].PrivateIP)
	assert.Equal(t, "54.1.2.3", instances[0].PublicIP)
	assert.Equal(t, "ap-southeast-2a", instances[0].Zone)
	assert.Equal(t, "controller", instances[0].Role())
	assert.Equal(t, cloud.StatePending, instances[1].State)

	form := srv.request("DescribeInstances")
	assert.Equal(t, "instance-state-name", form["Filter.2.Name"][0])
	assert.Equal(t, "running", form["Filter.2.Value.1"][0])
}

func TestRunInstances_UsesClientTokenAndUntagged(t *testing.T) {
	t.Parallel()

	client, srv := newTestClient(t, map[string]func(map[string][]string) (int, string){
		"RunInstances": ok(`<RunInstancesResponse><requestId>r</requestId><reservationId>r-1</reservationId>
<instancesSet><item><instanceId>i-7</instanceId><instanceState><code>0</code><name>pending</name></instanceState></item></instancesSet>
</RunInstancesResponse>`),
	})

	instances, err := client.RunInstances(context.Background(), cloud.InstanceRequest{
		Count:        1,
		InstanceType: "t2.micro",
		Image:        "ami-1",
		SubnetID:     "subnet-1",
		PublicIP:     true,
		RootVolumeGB: 10,
		ClientToken:  "token-1",
	})
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, "i-7", instances[0].ID)

	form := srv.request("RunInstances")
	assert.Equal(t, "token-1", form["ClientToken"][0])
	assert.Equal(t, "true", form["NetworkInterface.1.AssociatePublicIpAddress"][0])
	assert.Equal(t, "10", form["BlockDeviceMapping.1.Ebs.VolumeSize"][0])
	_, tagged := form["TagSpecification.1.ResourceType"]
	assert.False(t, tagged)
}

func TestGetVolume_NotFound(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, map[string]func(map[string][]string) (int, string){
		"DescribeVolumes": func(map[string][]string) (int, string) {
			return http.StatusBadRequest, errorBody("InvalidVolume.NotFound", "The volume 'vol-1' does not exist.")
		},
	})

	v, err := client.GetVolume(context.Background(), "vol-1")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestListInstances_FreshIDNotVisible(t *testing.T) {
	t.Parallel()

	notFound := func(map[string][]string) (int, string) {
		return http.StatusBadRequest, errorBody("InvalidInstanceID.NotFound", "The instance ID 'i-1' does not exist")
	}
	client, _ := newTestClient(t, map[string]func(map[string][]string) (int, string){
		"DescribeInstances": notFound,
		"CreateTags":        notFound,
	})

	_, err := client.ListInstances(context.Background(), cloud.InstanceFilter{IDs: []string{"i-1"}})
	require.ErrorIs(t, err, cloud.ErrNotVisible)
	assert.False(t, errdefs.IsProvider(err))

	err = client.TagResources(context.Background(), []string{"i-1"}, labels.Owned("demo"))
	require.ErrorIs(t, err, cloud.ErrNotVisible)

	_, err = client.ListInstances(context.Background(), cloud.InstanceFilter{Tags: labels.Owned("demo")})
	require.Error(t, err)
	assert.NotErrorIs(t, err, cloud.ErrNotVisible, "only lookups by id can lag")
}

func TestDeleteSecurityGroup_RetriesDependencyViolation(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	attempts := 0
	client, _ := newTestClient(t, map[string]func(map[string][]string) (int, string){
		"DeleteSecurityGroup": func(map[string][]string) (int, string) {
			mu.Lock()
			defer mu.Unlock()
			attempts++
			if attempts == 1 {
				return http.StatusBadRequest, errorBody("DependencyViolation", "resource sg-1 has a dependent object")
			}
			return http.StatusOK, `<DeleteSecurityGroupResponse><requestId>r</requestId><return>true</return></DeleteSecurityGroupResponse>`
		},
	})

	require.NoError(t, client.DeleteSecurityGroup(context.Background(), "sg-1"))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, attempts)
}

func TestDeleteSubnet_FatalErrorIsProviderError(t *testing.T) {
	t.Parallel()

	client, srv := newTestClient(t, map[string]func(map[string][]string) (int, string){
		"DeleteSubnet": func(map[string][]string) (int, string) {
			return http.StatusBadRequest, errorBody("UnauthorizedOperation", "denied")
		},
	})

	err := client.DeleteSubnet(context.Background(), "subnet-1")
	require.Error(t, err)
	assert.True(t, errdefs.IsProvider(err))
	assert.Equal(t, []string{"DeleteSubnet"}, srv.actions())
}

func TestSetRoute_ReplacesExisting(t *testing.T) {
	t.Parallel()

	client, srv := newTestClient(t, map[string]func(map[string][]string) (int, string){
		"CreateRoute": func(map[string][]string) (int, string) {
			return http.StatusBadRequest, errorBody("RouteAlreadyExists", "exists")
		},
		"ReplaceRoute": ok(`<ReplaceRouteResponse><requestId>r</requestId><return>true</return></ReplaceRouteResponse>`),
	})

	err := client.SetRoute(context.Background(), "rtb-1", cloud.Route{Destination: "0.0.0.0/0", InstanceID: "i-nat"})
	require.NoError(t, err)
	assert.Equal(t, []string{"CreateRoute", "ReplaceRoute"}, srv.actions())
	assert.Equal(t, "i-nat", srv.request("ReplaceRoute")["InstanceId"][0])
}

func TestAuthorizeIngress_IgnoresDuplicates(t *testing.T) {
	t.Parallel()

	client, srv := newTestClient(t, map[string]func(map[string][]string) (int, string){
		"AuthorizeSecurityGroupIngress": func(form map[string][]string) (int, string) {
			if form["IpPermissions.1.FromPort"] != nil && form["IpPermissions.1.FromPort"][0] == "22" {
				return http.StatusBadRequest, errorBody("InvalidPermission.Duplicate", "dup")
			}
			return http.StatusOK, `<AuthorizeSecurityGroupIngressResponse><requestId>r</requestId><return>true</return></AuthorizeSecurityGroupIngressResponse>`
		},
	})

	err := client.AuthorizeIngress(context.Background(), "sg-1", []cloud.Rule{
		{Protocol: "tcp", FromPort: 22, ToPort: 22, CIDR: "0.0.0.0/0"},
		{Protocol: "tcp", FromPort: 22000, ToPort: 22000, CIDR: "0.0.0.0/0"},
		{Protocol: cloud.ProtocolAll, SourceGroupID: "sg-2"},
	})
	require.NoError(t, err)
	assert.Len(t, srv.actions(), 3)
	assert.Equal(t, "sg-2", srv.request("AuthorizeSecurityGroupIngress")["IpPermissions.1.Groups.1.GroupId"][0])
}

func TestZone(t *testing.T) {
	t.Parallel()

	client := &Client{region: "ap-southeast-2"}
	assert.Equal(t, "ap-southeast-2a", client.Zone("a"))
	assert.Equal(t, "us-east-1b", client.Zone("us-east-1b"))
}
