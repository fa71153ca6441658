package replicate

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestDeriveNames(t *testing.T) {
	n := DeriveNames(JobSpec{SourceDB: "shop", DestinationDB: "analytics", Schema: "public", Table: "orders"})
	want := Names{
		Publication:  "public_orders_publication",
		Subscription: "public_orders_subscription",
		Slot:         "shop_orders_slot",
	}
	if n != want {
		t.Fatalf("DeriveNames = %+v, want %+v", n, want)
	}
}

func TestDeriveNamesSlotHasNoHyphen(t *testing.T) {
	dbs := []string{"shop", "shop-eu", "-lead", "trail-", "a--b", "x-y-z"}
	tables := []string{"orders", "order-items", "-", "t"}
	for _, db := range dbs {
		for _, tbl := range tables {
			j := JobSpec{SourceDB: db, DestinationDB: "dst", Schema: "public", Table: tbl}
			slot := DeriveNames(j).Slot
			if strings.Contains(slot, "-") {
				t.Fatalf("slot %q for db=%q table=%q contains a hyphen", slot, db, tbl)
			}
			if !strings.HasSuffix(slot, "_slot") {
				t.Fatalf("slot %q lost its suffix", slot)
			}
		}
	}
	if got := DeriveNames(JobSpec{SourceDB: "shop-eu", Table: "orders"}).Slot; got != "shop_eu_orders_slot" {
		t.Fatalf("normalized slot: %s", got)
	}
}

func TestDeriveNamesDeterministic(t *testing.T) {
	for i := 0; i < 20; i++ {
		j := JobSpec{SourceDB: fmt.Sprintf("db-%d", i), DestinationDB: "d", Schema: "s", Table: fmt.Sprintf("t%d", i)}
		if DeriveNames(j) != DeriveNames(j) {
			t.Fatalf("names differ for %+v", j)
		}
		// cleanup flag and destination do not influence names
		k := j
		k.Cleanup = true
		k.DestinationDB = "other"
		if DeriveNames(j) != DeriveNames(k) {
			t.Fatalf("names depend on unrelated fields")
		}
	}
}

func TestValidate(t *testing.T) {
	full := ConnectionTarget{Host: "db1", Port: 5432, User: "admin"}
	job := JobSpec{SourceDB: "shop", DestinationDB: "analytics", Schema: "public", Table: "orders"}
	if err := Validate(&full, job); err != nil {
		t.Fatalf("valid input rejected: %v", err)
	}

	noTable := job
	noTable.Table = ""
	err := Validate(&full, noTable)
	if KindOf(err) != InvalidArguments || !strings.Contains(err.Error(), "-t table") {
		t.Fatalf("missing table: %v", err)
	}

	err = Validate(&ConnectionTarget{}, JobSpec{})
	for _, flag := range []string{"-h host", "-p port", "-u username", "-s source_db", "-d destination_db", "-c schema", "-t table"} {
		if !strings.Contains(err.Error(), flag) {
			t.Fatalf("error %q does not list %s", err, flag)
		}
	}

	badPort := full
	badPort.Port = 70000
	if KindOf(Validate(&badPort, job)) != InvalidArguments {
		t.Fatalf("port out of range accepted")
	}

	same := job
	same.DestinationDB = "shop"
	if KindOf(Validate(&full, same)) != InvalidArguments {
		t.Fatalf("identical source and destination accepted")
	}
}

func TestValidateIdentifierLength(t *testing.T) {
	target := ConnectionTarget{Host: "db1", Port: 5432, User: "admin"}
	cases := []struct {
		name   string
		job    JobSpec
		reject bool
	}{
		{"short", JobSpec{SourceDB: "shop", DestinationDB: "analytics", Schema: "public", Table: "orders"}, false},
		{"long subscription", JobSpec{SourceDB: "shop", DestinationDB: "dw", Schema: "analytics_reporting", Table: "customer_order_line_items_history_archive"}, true},
		{"long slot", JobSpec{SourceDB: strings.Repeat("s", 40), DestinationDB: "dw", Schema: "public", Table: "orders_history_2024"}, true},
		// "public_" + 43 + "_subscription" = 63 bytes
		{"exactly 63", JobSpec{SourceDB: "shop", DestinationDB: "dw", Schema: "public", Table: strings.Repeat("t", 43)}, false},
		{"64", JobSpec{SourceDB: "shop", DestinationDB: "dw", Schema: "public", Table: strings.Repeat("t", 44)}, true},
	}
	for _, c := range cases {
		err := Validate(&target, c.job)
		if c.reject {
			if KindOf(err) != InvalidArguments || !strings.Contains(err.Error(), "63") {
				t.Errorf("%s: want InvalidArguments naming the limit, got %v", c.name, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected %v", c.name, err)
		}
	}
}

func TestErrorHelpers(t *testing.T) {
	base := errors.New("boom")
	err := fmt.Errorf("wrapped: %w", &Error{Kind: ObjectAlreadyExists, Op: "slot", Hint: "drop it", Err: base})
	if KindOf(err) != ObjectAlreadyExists || HintOf(err) != "drop it" || !errors.Is(err, base) {
		t.Fatalf("helpers: kind=%v hint=%q is=%v", KindOf(err), HintOf(err), errors.Is(err, base))
	}
	if KindOf(base) != 0 || HintOf(base) != "" {
		t.Fatalf("plain error misclassified")
	}
	if ExternalCommandFailed.String() != "ExternalCommandFailed" {
		t.Fatalf("Kind.String: %s", ExternalCommandFailed)
	}
}

func TestTargetLogValueHidesPassword(t *testing.T) {
	tg := &ConnectionTarget{Host: "db1", Port: 5432, User: "admin", Password: "s3cret"}
	if strings.Contains(tg.LogValue().String(), "s3cret") {
		t.Fatalf("password leaked: %s", tg.LogValue())
	}
}
