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

package app

import (
	"context"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/client-go/kubernetes"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	ctrlmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"

	"github.com/certificate-helper/certificate-helper/config"
	"github.com/certificate-helper/certificate-helper/controllers"
	"github.com/certificate-helper/certificate-helper/metrics"
	"github.com/certificate-helper/certificate-helper/webhooks"
)

// NewRunCommand creates the command running the controllers and the
// admission server.
func NewRunCommand() *cobra.Command {
	cfg := config.Default()
	var configFile string

	settings := pflag.NewFlagSet("settings", pflag.ExitOnError)
	cfg.BindFlags(settings)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the Certificate and WebhookHelper controllers and the admission server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Complete(settings, configFile); err != nil {
				return err
			}
			return Run(ctrl.SetupSignalHandler(), cfg)
		},
	}
	cmd.Flags().AddFlagSet(settings)
	cmd.Flags().StringVar(&configFile, "config", "",
		"A YAML file with settings. Flags set on the command line take precedence.")
	return cmd
}

// Run starts the manager and blocks until ctx is done.
func Run(ctx context.Context, cfg *config.Config) error {
	restConfig, err := ctrl.GetConfig()
	if err != nil {
		return errors.Wrap(err, "unable to load kubeconfig")
	}

	if err := metrics.Register(ctrlmetrics.Registry); err != nil {
		return errors.Wrap(err, "unable to register metrics")
	}

	mgr, err := ctrl.NewManager(restConfig, ctrl.Options{
		Scheme:                 scheme,
		MetricsBindAddress:     cfg.MetricsBindAddress,
		LeaderElection:         cfg.LeaderElection,
		LeaderElectionID:       cfg.LeaderElectionID,
		SyncPeriod:             &cfg.SyncPeriod,
		Port:                   cfg.Port,
		CertDir:                cfg.CertDir,
		HealthProbeBindAddress: cfg.HealthProbeBindAddress,
	})
	if err != nil {
		return errors.Wrap(err, "unable to start manager")
	}

	// Setup health checks.
	if err := mgr.AddReadyzCheck("ping", healthz.Ping); err != nil {
		return errors.Wrap(err, "unable to create ready check")
	}
	if err := mgr.AddHealthzCheck("ping", healthz.Ping); err != nil {
		return errors.Wrap(err, "unable to create health check")
	}

	kube, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return errors.Wrap(err, "unable to create clientset")
	}

	if err := controllers.SetupWithManager(mgr, controllers.Options{
		Kube:                    kube,
		MaxConcurrentReconciles: cfg.MaxConcurrentReconciles,
		ApprovalPollInterval:    cfg.ApprovalPollInterval,
		ApprovalTimeout:         cfg.ApprovalTimeout,
		CANamespace:             cfg.CANamespace,
	}); err != nil {
		return err
	}
	if err := webhooks.SetupWithManager(mgr); err != nil {
		return err
	}
	// +kubebuilder:scaffold:builder

	setupLog.Info("Starting manager", "port", cfg.Port, "certDir", cfg.CertDir)
	if err := mgr.Start(ctx); err != nil {
		setupLog.Error(err, "problem running manager")
		return err
	}
	return nil
}
