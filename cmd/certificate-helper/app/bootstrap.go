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
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/certificate-helper/certificate-helper/bootstrap"
)

// NewBootstrapCommand creates the command installing certificate-helper's
// own admission webhook.
func NewBootstrapCommand() *cobra.Command {
	var (
		opts   bootstrap.Options
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the WebhookHelper serving certificate-helper's admission webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Namespace == "" {
				return errors.New("--namespace is required")
			}
			if dryRun {
				return bootstrap.Render(cmd.OutOrStdout(), opts)
			}

			restConfig, err := ctrl.GetConfig()
			if err != nil {
				return errors.Wrap(err, "unable to load kubeconfig")
			}
			c, err := client.New(restConfig, client.Options{Scheme: scheme})
			if err != nil {
				return errors.Wrap(err, "unable to create client")
			}
			return bootstrap.Apply(ctrl.LoggerInto(cmd.Context(), setupLog), c, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Namespace, "namespace", "n", "",
		"The namespace to deploy the admission webhook to.")
	cmd.Flags().StringVar(&opts.Image, "image", bootstrap.DefaultImage,
		"The certificate-helper image to deploy.")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false,
		"Print the manifests instead of creating them.")
	return cmd
}
