package rolereq

import (
	"context"
	"testing"

	"github.com/registria/registria/internal/identity"
)

func newBenchWorkflow() *Service {
	reg := newStubRegistry()
	manager := identity.NamedRole(identity.RoleNameRoleManager)
	reg.members[reg.key(manager, operatorAcct)] = true
	reg.members[reg.key(manager, managerAcct)] = true
	return NewService(newMemoryLedger(), reg, operatorAcct, ServiceConfig{})
}

func BenchmarkSubmit(b *testing.B) {
	svc := newBenchWorkflow()
	ctx := context.Background()
	role := identity.NamedRole(identity.RoleNameDealer)

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := svc.Submit(ctx, role, requester); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSubmitApprove(b *testing.B) {
	svc := newBenchWorkflow()
	ctx := context.Background()
	role := identity.NamedRole(identity.RoleNameDealer)

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		req, err := svc.Submit(ctx, role, requester)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := svc.Approve(ctx, req.ID, managerAcct); err != nil {
			b.Fatal(err)
		}
	}
}
