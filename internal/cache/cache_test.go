package cache

import "testing"

func TestOnMutationDropsContractKeysOnly(t *testing.T) {
	c := New()
	c.Set(Key{Query: QueryServiceDetail, Param: "svc-1"}, "detail-1")
	c.Set(Key{Query: QueryServiceDetail, Param: "svc-2"}, "detail-2")
	c.Set(Key{Query: QueryServiceVariables, Param: "svc-1"}, "vars-1")
	c.Set(Key{Query: QueryServiceDeployments, Param: "svc-1"}, "deps-1")

	c.OnMutation(MutationWriteVariable, "svc-1")

	if _, ok := c.Get(Key{Query: QueryServiceDetail, Param: "svc-1"}); ok {
		t.Fatal("service detail for svc-1 should be invalidated")
	}
	if _, ok := c.Get(Key{Query: QueryServiceVariables, Param: "svc-1"}); ok {
		t.Fatal("variables for svc-1 should be invalidated")
	}
	if _, ok := c.Get(Key{Query: QueryServiceDetail, Param: "svc-2"}); !ok {
		t.Fatal("svc-2 detail should be untouched")
	}
	if _, ok := c.Get(Key{Query: QueryServiceDeployments, Param: "svc-1"}); !ok {
		t.Fatal("deployments are not part of the variable mutation contract")
	}
}

func TestOnMutationUnknownMutationIsNoOp(t *testing.T) {
	c := New()
	c.Set(Key{Query: QueryServiceDetail, Param: "svc-1"}, "detail")
	c.OnMutation("renameService", "svc-1")
	if c.Len() != 1 {
		t.Fatalf("expected untouched cache, have %d entries", c.Len())
	}
}
