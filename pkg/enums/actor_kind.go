package enums

import "fmt"

// ActorKind distinguishes staff accounts from customer accounts.
type ActorKind string

const (
	ActorKindEmployee ActorKind = "employee"
	ActorKindCustomer ActorKind = "customer"
)

var validActorKinds = []ActorKind{
	ActorKindEmployee,
	ActorKindCustomer,
}

func (k ActorKind) String() string {
	return string(k)
}

func (k ActorKind) IsValid() bool {
	for _, candidate := range validActorKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

func ParseActorKind(value string) (ActorKind, error) {
	for _, candidate := range validActorKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid actor kind %q", value)
}
