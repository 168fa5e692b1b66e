package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the authorization server
type Metrics struct {
	ChannelStages    *prometheus.CounterVec
	ChannelDuration  prometheus.Histogram
	AuthorizeResults *prometheus.CounterVec
	TokenGrants      *prometheus.CounterVec
	ExternalLogins   *prometheus.CounterVec
	UsersCreated     prometheus.Counter
}

// New creates the collectors and registers them with reg.
// Passing nil registers with the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		ChannelStages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "edu_idm_idgovua_stage_total",
			Help: "Encrypted channel stage executions by stage and outcome",
		}, []string{"stage", "outcome"}),
		ChannelDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "edu_idm_idgovua_pipeline_seconds",
			Help:    "Duration of the full encrypted channel pipeline",
			Buckets: prometheus.DefBuckets,
		}),
		AuthorizeResults: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "edu_idm_authorize_outcomes_total",
			Help: "Authorization endpoint outcomes by kind",
		}, []string{"outcome"}),
		TokenGrants: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "edu_idm_token_grants_total",
			Help: "Token endpoint requests by grant type and result",
		}, []string{"grant_type", "result"}),
		ExternalLogins: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "edu_idm_external_logins_total",
			Help: "External login callbacks by result",
		}, []string{"result"}),
		UsersCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "edu_idm_external_users_created_total",
			Help: "Local users created on first external login",
		}),
	}
}

// NewNoop returns collectors bound to a private registry, for tests and tools
func NewNoop() *Metrics {
	return New(prometheus.NewRegistry())
}

func (m *Metrics) ObserveStage(stage, outcome string) {
	if m == nil {
		return
	}
	m.ChannelStages.WithLabelValues(stage, outcome).Inc()
}

func (m *Metrics) ObservePipeline(started time.Time) {
	if m == nil {
		return
	}
	m.ChannelDuration.Observe(time.Since(started).Seconds())
}

func (m *Metrics) ObserveAuthorize(outcome string) {
	if m == nil {
		return
	}
	m.AuthorizeResults.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveGrant(grantType, result string) {
	if m == nil {
		return
	}
	m.TokenGrants.WithLabelValues(grantType, result).Inc()
}

func (m *Metrics) ObserveExternalLogin(result string) {
	if m == nil {
		return
	}
	m.ExternalLogins.WithLabelValues(result).Inc()
}

func (m *Metrics) IncrementUsersCreated() {
	if m == nil {
		return
	}
	m.UsersCreated.Inc()
}
