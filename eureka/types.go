package eureka

import "fmt"

// Port is a Eureka instance port: a value plus an enabled flag, matching the
// `{"$": <int>, "@enabled": <bool>}` wire shape.
type Port struct {
	Port    int  `json:"$"`
	Enabled bool `json:"@enabled"`
}

// LeaseInfo is the Eureka lease renewal contract for one instance.
type LeaseInfo struct {
	RenewalIntervalInSecs int64 `json:"renewalIntervalInSecs"`
	DurationInSecs        int64 `json:"durationInSecs"`
	RegistrationTimestamp int64 `json:"registrationTimestamp"`
	LastRenewalTimestamp  int64 `json:"lastRenewalTimestamp"`
	EvictionTimestamp     int64 `json:"evictionTimestamp"`
	ServiceUpTimestamp    int64 `json:"serviceUpTimestamp"`
}

// DataCenterInfo names the data center an instance runs in.
type DataCenterInfo struct {
	Name      string `json:"name"`
	ClassName string `json:"@class"`
}

// InstanceInfo is a snapshot of one registered Eureka instance. It is
// replaced as a whole on every directory refresh; callers must not mutate
// a value handed to them.
type InstanceInfo struct {
	App                           string            `json:"app"`
	InstanceID                    string            `json:"instanceId"`
	IPAddr                        string            `json:"ipAddr"`
	Port                          *Port             `json:"port,omitempty"`
	SecurePort                    *Port             `json:"securePort,omitempty"`
	HostName                      string            `json:"hostName"`
	HomePageURL                   string            `json:"homePageUrl,omitempty"`
	StatusPageURL                 string            `json:"statusPageUrl,omitempty"`
	HealthCheckURL                string            `json:"healthCheckUrl,omitempty"`
	VipAddress                    string            `json:"vipAddress"`
	SecureVipAddress              string            `json:"secureVipAddress,omitempty"`
	Status                        string            `json:"status"`
	DataCenterInfo                *DataCenterInfo   `json:"dataCenterInfo,omitempty"`
	LeaseInfo                     *LeaseInfo        `json:"leaseInfo,omitempty"`
	Metadata                      map[string]string `json:"metadata,omitempty"`
	IsCoordinatingDiscoveryServer bool              `json:"isCoordinatingDiscoveryServer"`
	LastUpdatedTimestamp          int64             `json:"lastUpdatedTimestamp"`
	LastDirtyTimestamp            int64             `json:"lastDirtyTimestamp"`
	ActionType                    *string           `json:"actionType"`
	OverriddenStatus              string            `json:"overriddenstatus,omitempty"`
	CountryID                     int64             `json:"countryId,omitempty"`
}

// IsUp reports whether the instance last published an UP status.
func (i *InstanceInfo) IsUp() bool {
	return i != nil && (i.Status == "UP" || i.Status == "up")
}

// Application is one named app and its instances, as returned by
// queryInsByAppId.
type Application struct {
	Name      string          `json:"name"`
	Instances []*InstanceInfo `json:"instance"`
}

// applicationsWire is the `applications` envelope returned by queryInsAll,
// queryInsByVip and queryInsBySVip.
type applicationsWire struct {
	VersionsDelta string         `json:"versions__delta,omitempty"`
	AppsHashCode  string         `json:"apps__hashcode,omitempty"`
	Applications  []*Application `json:"application"`
}

type applicationsEnvelope struct {
	Applications applicationsWire `json:"applications"`
}

type applicationEnvelope struct {
	Application Application `json:"application"`
}

type instanceEnvelope struct {
	Instance *InstanceInfo `json:"instance"`
}

type registerEnvelope struct {
	Instance *InstanceInfo `json:"instance"`
}

func flattenApplications(apps []*Application) []*InstanceInfo {
	var out []*InstanceInfo
	for _, app := range apps {
		if app == nil {
			continue
		}
		for _, ins := range app.Instances {
			if ins == nil {
				continue
			}
			out = append(out, ins)
		}
	}
	return out
}

// endpointFor derives a peer's base URL from its InstanceInfo, preferring
// the non-secure port, then the secure port, then the default HTTP port.
func endpointFor(ins *InstanceInfo) string {
	if ins == nil {
		return ""
	}
	if ins.Port != nil && ins.Port.Enabled {
		return fmt.Sprintf("http://%s:%d", ins.IPAddr, ins.Port.Port)
	}
	if ins.SecurePort != nil && ins.SecurePort.Enabled {
		return fmt.Sprintf("https://%s:%d", ins.IPAddr, ins.SecurePort.Port)
	}
	return fmt.Sprintf("http://%s", ins.IPAddr)
}
