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
	goflag "flag"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	"k8s.io/klog/v2"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/certificate-helper/certificate-helper/apis"
	// +kubebuilder:scaffold:imports
)

var (
	scheme   = runtime.NewScheme()
	setupLog = ctrl.Log.WithName("setup")
)

func init() {
	utilruntime.Must(apis.AddToScheme(scheme))
	// +kubebuilder:scaffold:scheme
}

// NewCertificateHelperCommand creates the certificate-helper command with
// its run and bootstrap subcommands.
func NewCertificateHelperCommand() *cobra.Command {
	opts := zap.Options{
		Development: true,
		EncoderConfigOptions: []zap.EncoderConfigOption{
			func(c *zapcore.EncoderConfig) {
				c.EncodeTime = zapcore.ISO8601TimeEncoder
			},
		},
	}

	cmd := &cobra.Command{
		Use:   "certificate-helper",
		Short: "Issues serving certificates and wires admission webhooks through the cluster's CSR API",
		PersistentPreRun: func(*cobra.Command, []string) {
			ctrl.SetLogger(zap.New(zap.UseFlagOptions(&opts)))
		},
		SilenceUsage: true,
	}

	goflags := goflag.NewFlagSet("certificate-helper", goflag.ExitOnError)
	klog.InitFlags(goflags)
	opts.BindFlags(goflags)
	cmd.PersistentFlags().AddGoFlagSet(goflags)

	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewBootstrapCommand())
	return cmd
}
