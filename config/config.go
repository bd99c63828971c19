/*
Copyright 2021 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package config holds the settings of the operator process. Settings come
// from flags and optionally a YAML file; flags set on the command line win.
package config

import (
	"io/ioutil"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v2"

	"github.com/certificate-helper/certificate-helper/constants"
)

// Config is the operator configuration.
type Config struct {
	Port                    int           `yaml:"port"`
	CertDir                 string        `yaml:"certDir"`
	MetricsBindAddress      string        `yaml:"metricsBindAddress"`
	HealthProbeBindAddress  string        `yaml:"healthProbeBindAddress"`
	LeaderElection          bool          `yaml:"leaderElection"`
	LeaderElectionID        string        `yaml:"leaderElectionID"`
	SyncPeriod              time.Duration `yaml:"syncPeriod"`
	MaxConcurrentReconciles int           `yaml:"maxConcurrentReconciles"`
	ApprovalPollInterval    time.Duration `yaml:"approvalPollInterval"`
	ApprovalTimeout         time.Duration `yaml:"approvalTimeout"`
	CANamespace             string        `yaml:"caNamespace"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Port:                    9443,
		CertDir:                 "/certificate-helper",
		MetricsBindAddress:      ":8080",
		HealthProbeBindAddress:  ":9440",
		LeaderElectionID:        "certificate-helper-leader-election",
		SyncPeriod:              10 * time.Minute,
		MaxConcurrentReconciles: constants.DefaultMaxConcurrentReconciles,
		ApprovalPollInterval:    constants.DefaultApprovalPollInterval,
		ApprovalTimeout:         constants.DefaultApprovalTimeout,
		CANamespace:             constants.DefaultRootCANamespace,
	}
}

// BindFlags registers a flag for every setting, defaulting to the current
// values of c.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.IntVarP(&c.Port, "port", "p", c.Port,
		"The port the admission webhook server listens on.")
	fs.StringVar(&c.CertDir, "cert-dir", c.CertDir,
		"The directory holding tls.crt and tls.key for the admission webhook server.")
	fs.StringVar(&c.MetricsBindAddress, "metrics-bind-address", c.MetricsBindAddress,
		"The address the metric endpoint binds to.")
	fs.StringVar(&c.HealthProbeBindAddress, "health-addr", c.HealthProbeBindAddress,
		"The address the health endpoint binds to.")
	fs.BoolVar(&c.LeaderElection, "leader-elect", c.LeaderElection,
		"Enable leader election for controller manager. Enabling this will ensure there is only one active controller manager.")
	fs.StringVar(&c.LeaderElectionID, "leader-elect-id", c.LeaderElectionID,
		"The name of the resource leader election uses for holding the leader lock.")
	fs.DurationVar(&c.SyncPeriod, "sync-period", c.SyncPeriod,
		"The minimum interval at which watched resources are reconciled (e.g. 15m)")
	fs.IntVar(&c.MaxConcurrentReconciles, "max-concurrent-reconciles", c.MaxConcurrentReconciles,
		"The number of concurrent reconciles per controller.")
	fs.DurationVar(&c.ApprovalPollInterval, "approval-poll-interval", c.ApprovalPollInterval,
		"How often an approved certificate signing request is checked for its certificate.")
	fs.DurationVar(&c.ApprovalTimeout, "approval-timeout", c.ApprovalTimeout,
		"How long to wait for an approved certificate signing request to be signed.")
	fs.StringVar(&c.CANamespace, "ca-namespace", c.CANamespace,
		"The namespace of the kube-root-ca.crt ConfigMap injected into webhook configurations.")
}

// Load reads the YAML file at path over a default configuration.
func Load(path string) (*Config, error) {
	c := Default()
	if err := c.loadFile(path); err != nil {
		return nil, err
	}
	return c, nil
}

// Complete layers the file at path, if any, under the flags of fs that were
// set explicitly, then validates the result.
func (c *Config) Complete(fs *pflag.FlagSet, path string) error {
	if path != "" {
		changed := map[*pflag.Flag]string{}
		fs.VisitAll(func(f *pflag.Flag) {
			if f.Changed {
				changed[f] = f.Value.String()
			}
		})
		if err := c.loadFile(path); err != nil {
			return err
		}
		for f, value := range changed {
			if err := f.Value.Set(value); err != nil {
				return errors.Wrapf(err, "failed to reapply flag --%s", f.Name)
			}
		}
	}
	return c.Validate()
}

// Validate rejects settings the operator cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return errors.Errorf("invalid port %d", c.Port)
	case c.MaxConcurrentReconciles <= 0:
		return errors.Errorf("max concurrent reconciles must be positive, got %d", c.MaxConcurrentReconciles)
	case c.ApprovalPollInterval <= 0:
		return errors.Errorf("approval poll interval must be positive, got %s", c.ApprovalPollInterval)
	case c.ApprovalTimeout < c.ApprovalPollInterval:
		return errors.Errorf("approval timeout %s is shorter than the poll interval %s", c.ApprovalTimeout, c.ApprovalPollInterval)
	case c.CANamespace == "":
		return errors.New("ca namespace must be set")
	}
	return nil
}

func (c *Config) loadFile(path string) error {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "failed to read config %s", path)
	}
	if err := yaml.UnmarshalStrict(data, c); err != nil {
		return errors.Wrapf(err, "failed to parse config %s", path)
	}
	return nil
}
