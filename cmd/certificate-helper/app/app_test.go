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
	"bytes"
	"testing"

	. "github.com/onsi/gomega"
)

func TestBootstrapDryRun(t *testing.T) {
	g := NewWithT(t)
	var out bytes.Buffer

	cmd := NewCertificateHelperCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"bootstrap", "--namespace", "tools", "--image", "example.com/ch:v1", "--dry-run"})
	g.Expect(cmd.Execute()).To(Succeed())

	g.Expect(out.String()).To(ContainSubstring("name: certificate-helper.tools.svc"))
	g.Expect(out.String()).To(ContainSubstring("image: example.com/ch:v1"))
}

func TestBootstrapRequiresNamespace(t *testing.T) {
	g := NewWithT(t)
	cmd := NewCertificateHelperCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"bootstrap", "--dry-run"})
	g.Expect(cmd.Execute()).NotTo(Succeed())
}

func TestRunFlags(t *testing.T) {
	g := NewWithT(t)
	run := NewRunCommand()
	for _, name := range []string{
		"port",
		"cert-dir",
		"metrics-bind-address",
		"health-addr",
		"leader-elect",
		"sync-period",
		"max-concurrent-reconciles",
		"approval-poll-interval",
		"approval-timeout",
		"ca-namespace",
		"config",
	} {
		g.Expect(run.Flags().Lookup(name)).NotTo(BeNil(), "missing flag --%s", name)
	}
	g.Expect(run.Flags().Lookup("port").DefValue).To(Equal("9443"))
	g.Expect(run.Flags().Lookup("cert-dir").DefValue).To(Equal("/certificate-helper"))
}
