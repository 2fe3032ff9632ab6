package core

import "testing"

func TestResolveServiceNames_NamingConvention(t *testing.T) {
	cases := []struct {
		name string
		path string
		want []string
	}{
		{name: "shared file", path: "application.yml", want: []string{"*"}},
		{name: "shared profile", path: "application-prod.yml", want: []string{"*:prod"}},
		{name: "service", path: "orders.yml", want: []string{"orders"}},
		{name: "service profile", path: "orders-prod.yml", want: []string{"orders:prod", "orders-prod"}},
		{
			name: "every separator",
			path: "orders-east-prod.yml",
			want: []string{"orders:east-prod", "orders-east:prod", "orders-east-prod"},
		},
		{name: "nested directory", path: "config/a/b/orders-prod.properties", want: []string{"orders:prod", "orders-prod"}},
		{name: "shared multi profile", path: "application-east-prod.yml", want: []string{"*:east-prod"}},
		{name: "reserved prefix skipped", path: "applicationx.yml", want: []string{}},
		{name: "reserved prefix profile skipped", path: "applicationx-prod.yml", want: []string{}},
		{name: "no extension", path: "orders", want: []string{"orders"}},
		{name: "multiple dots", path: "orders.prod.yml", want: []string{"orders.prod"}},
		{name: "empty", path: "", want: []string{}},
		{name: "extension only", path: "dir/.yml", want: []string{}},
		{name: "trailing separator", path: "orders-.yml", want: []string{"orders:", "orders-"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assertNames(t, ResolveServiceNames(tc.path).Values(), tc.want...)
		})
	}
}

func TestResolveServiceNames_Deterministic(t *testing.T) {
	first := ResolveServiceNames("billing-eu-west-prod.yml").Values()
	second := ResolveServiceNames("billing-eu-west-prod.yml").Values()
	assertNames(t, second, first...)
	assertNames(t, first, "billing:eu-west-prod", "billing-eu:west-prod", "billing-eu-west:prod", "billing-eu-west-prod")
}

func TestAccumulateServiceNames_FirstSeenOrder(t *testing.T) {
	got := AccumulateServiceNames([]string{"application.yml", "orders.yml", "application.yml"}).Values()
	assertNames(t, got, "*", "orders")

	got = AccumulateServiceNames([]string{"orders-prod.yml", "", "orders.yml", "billing-prod.yml", "orders-prod.yml"}).Values()
	assertNames(t, got, "orders:prod", "orders-prod", "orders", "billing:prod", "billing-prod")
}

func TestAccumulateServiceNames_EmptyInput(t *testing.T) {
	assertNames(t, AccumulateServiceNames(nil).Values())
	assertNames(t, AccumulateServiceNames([]string{"", "applicationx.yml"}).Values())
}

func TestServiceNameSet_AddReportsChanges(t *testing.T) {
	set := NewServiceNameSet("a", "b", "a")
	if set.Len() != 2 {
		t.Fatalf("expected 2 names, got %d", set.Len())
	}
	if set.Add("b") {
		t.Fatalf("expected duplicate add to report no change")
	}
	if !set.Add("c") {
		t.Fatalf("expected new add to report change")
	}
	if !set.Contains("c") || set.Contains("d") {
		t.Fatalf("unexpected membership: %v", set.Values())
	}

	values := set.Values()
	values[0] = "mutated"
	if set.Values()[0] != "a" {
		t.Fatalf("expected values to be a copy")
	}

	var zero ServiceNameSet
	zero.Add("x")
	assertNames(t, zero.Values(), "x")

	var nilSet *ServiceNameSet
	if nilSet.Len() != 0 || nilSet.Contains("x") {
		t.Fatalf("expected nil set to behave as empty")
	}
	assertNames(t, nilSet.Values())
}
