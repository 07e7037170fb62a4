package eureka

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"
)

// RegistryClient is the thin facade over an endpointController that speaks
// the Eureka REST protocol: it builds paths, encodes bodies, and classifies
// responses. It holds no peer state of its own; AppDirectory and
// HeartbeatManager are the stateful layers built on top of it.
type RegistryClient struct {
	ec *endpointController
}

func newRegistryClient(ec *endpointController) *RegistryClient {
	return &RegistryClient{ec: ec}
}

func encodePathSegment(s string) string {
	return url.PathEscape(s)
}

// QueryInsAll fetches every registered instance across all applications.
func (c *RegistryClient) QueryInsAll() ([]*InstanceInfo, error) {
	resp, err := c.ec.RequestWithRetry(http.MethodGet, "/apps", "", nil)
	if err != nil {
		return nil, err
	}
	var env applicationsEnvelope
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return nil, NewFormatError("decoding apps response: %v", err)
	}
	return flattenApplications(env.Applications.Applications), nil
}

// QueryInsByAppID fetches one application's instances.
func (c *RegistryClient) QueryInsByAppID(appID string) (*Application, error) {
	path := "/apps/" + encodePathSegment(appID)
	resp, err := c.ec.RequestWithRetry(http.MethodGet, path, "", nil)
	if err != nil {
		return nil, err
	}
	var env applicationEnvelope
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return nil, NewFormatError("decoding app response: %v", err)
	}
	return &env.Application, nil
}

// QueryInsByAppIdInsId fetches one specific instance.
func (c *RegistryClient) QueryInsByAppIdInsId(appID, insID string) (*InstanceInfo, error) {
	path := "/apps/" + encodePathSegment(appID) + "/" + encodePathSegment(insID)
	resp, err := c.ec.RequestWithRetry(http.MethodGet, path, "", nil)
	if err != nil {
		return nil, err
	}
	var env instanceEnvelope
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return nil, NewFormatError("decoding instance response: %v", err)
	}
	return env.Instance, nil
}

// QueryInsByVip fetches every instance registered under a VIP address.
func (c *RegistryClient) QueryInsByVip(vip string) ([]*InstanceInfo, error) {
	path := "/vips/" + encodePathSegment(vip)
	resp, err := c.ec.RequestWithRetry(http.MethodGet, path, "", nil)
	if err != nil {
		return nil, err
	}
	var env applicationsEnvelope
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return nil, NewFormatError("decoding vips response: %v", err)
	}
	return flattenApplications(env.Applications.Applications), nil
}

// QueryInsBySVip fetches every instance registered under a secure VIP
// address.
func (c *RegistryClient) QueryInsBySVip(svip string) ([]*InstanceInfo, error) {
	path := "/svips/" + encodePathSegment(svip)
	resp, err := c.ec.RequestWithRetry(http.MethodGet, path, "", nil)
	if err != nil {
		return nil, err
	}
	var env applicationsEnvelope
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return nil, NewFormatError("decoding svips response: %v", err)
	}
	return flattenApplications(env.Applications.Applications), nil
}

// Register publishes one instance.
func (c *RegistryClient) Register(ins *InstanceInfo) error {
	body, err := json.Marshal(registerEnvelope{Instance: ins})
	if err != nil {
		return NewFormatError("encoding register request: %v", err)
	}
	path := "/apps/" + encodePathSegment(ins.App)
	_, err = c.ec.RequestWithRetry(http.MethodPost, path, "", body)
	return err
}

// Unregister removes one instance.
func (c *RegistryClient) Unregister(appID, insID string) error {
	path := "/apps/" + encodePathSegment(appID) + "/" + encodePathSegment(insID)
	_, err := c.ec.RequestWithRetry(http.MethodDelete, path, "", nil)
	return err
}

// SendHeart renews one instance's lease.
func (c *RegistryClient) SendHeart(appID, insID string) error {
	path := "/apps/" + encodePathSegment(appID) + "/" + encodePathSegment(insID)
	_, err := c.ec.RequestWithRetry(http.MethodPut, path, "", nil)
	return err
}

// StatusOutOfService marks one instance as OUT_OF_SERVICE.
func (c *RegistryClient) StatusOutOfService(appID, insID string) error {
	path := "/apps/" + encodePathSegment(appID) + "/" + encodePathSegment(insID) + "/status"
	query := "value=" + url.QueryEscape("OUT_OF_SERVICE")
	_, err := c.ec.RequestWithRetry(http.MethodPut, path, query, nil)
	return err
}

// StatusUp clears an override, returning the instance to UP.
func (c *RegistryClient) StatusUp(appID, insID string) error {
	path := "/apps/" + encodePathSegment(appID) + "/" + encodePathSegment(insID) + "/status"
	query := "value=" + url.QueryEscape("UP")
	_, err := c.ec.RequestWithRetry(http.MethodDelete, path, query, nil)
	return err
}

// UpdateMetadata sets one metadata key/value on an instance.
func (c *RegistryClient) UpdateMetadata(appID, insID, key, value string) error {
	path := "/apps/" + encodePathSegment(appID) + "/" + encodePathSegment(insID) + "/metadata"
	query := url.QueryEscape(key) + "=" + url.QueryEscape(value)
	_, err := c.ec.RequestWithRetry(http.MethodPut, path, query, nil)
	return err
}

// GetEmptyIns builds a default InstanceInfo the way the original
// EurekaConnect::getEmptyIns does, as a starting point callers can
// customize before registering.
func GetEmptyIns(app, instanceID, ipAddr string, port int) *InstanceInfo {
	now := time.Now().UnixNano() / int64(time.Millisecond)
	empty := ""
	return &InstanceInfo{
		App:              app,
		InstanceID:       instanceID,
		IPAddr:           ipAddr,
		Port:             &Port{Port: port, Enabled: true},
		SecurePort:       &Port{Port: port, Enabled: false},
		HostName:         ipAddr,
		VipAddress:       ipAddr,
		SecureVipAddress: ipAddr,
		Status:           "UP",
		DataCenterInfo: &DataCenterInfo{
			Name:      "MyOwn",
			ClassName: "com.netflix.appinfo.InstanceInfo$DefaultDataCenterInfo",
		},
		LeaseInfo:            &LeaseInfo{},
		Metadata:             map[string]string{},
		LastUpdatedTimestamp: now,
		LastDirtyTimestamp:   now,
		ActionType:           &empty,
		OverriddenStatus:     "UNKNOWN",
		CountryID:            1,
	}
}
