package authority

import (
	"bytes"
	"errors"
	"testing"

	"evrewards/backend/services/rewards-service/internal/address"
)

var testProgram = address.Hash([]byte("rewards-program-test"))

func TestAuthorityIsDeterministicAndOffCurve(t *testing.T) {
	d := NewDeriver(testProgram)

	first, err := d.Authority(PlatformAuthority)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	second, err := NewDeriver(testProgram).Authority(PlatformAuthority)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if first != second {
		t.Fatalf("derivation not deterministic: %+v vs %+v", first, second)
	}
	if onCurve(first.Address) {
		t.Fatal("derived authority must be off curve")
	}

	mint, err := d.Authority(MintAuthority)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if mint.Address == first.Address {
		t.Fatal("distinct seeds must give distinct authorities")
	}
}

func TestAuthorityDependsOnProgram(t *testing.T) {
	a, err := NewDeriver(testProgram).Authority(MintAuthority)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	b, err := NewDeriver(address.Hash([]byte("other-program"))).Authority(MintAuthority)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if a.Address == b.Address {
		t.Fatal("authorities of different programs must differ")
	}
}

func TestCreateProgramAddressReproducesBump(t *testing.T) {
	auth, err := NewDeriver(testProgram).Authority(PlatformAuthority)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}

	addr, err := CreateProgramAddress([][]byte{[]byte(PlatformAuthority), {auth.Bump}}, testProgram)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if addr != auth.Address {
		t.Fatalf("got %s want %s", addr, auth.Address)
	}
}

func TestVerifyProgramSignature(t *testing.T) {
	auth, err := NewDeriver(testProgram).Authority(PlatformAuthority)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}

	if err := VerifyProgramSignature(auth.Signature(), testProgram); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}

	other := address.Hash([]byte("other-program"))
	if err := VerifyProgramSignature(auth.Signature(), other); err == nil {
		t.Fatal("signature must not verify under another program")
	}

	forged := auth.Signature()
	forged.Signer = address.Hash([]byte("attacker"))
	if err := VerifyProgramSignature(forged, testProgram); !errors.Is(err, ErrSignerMismatch) {
		t.Fatalf("expected ErrSignerMismatch, got %v", err)
	}

	if err := VerifyProgramSignature(SignedBy(auth.Address), testProgram); !errors.Is(err, ErrSignerMismatch) {
		t.Fatalf("owner signature must not pass as program signature, got %v", err)
	}
}

func TestRecordAddressesAreDistinct(t *testing.T) {
	d := NewDeriver(testProgram)
	driver := address.Hash([]byte("driver"))

	platform, err := d.PlatformAddress()
	if err != nil {
		t.Fatalf("platform: %v", err)
	}
	record, err := d.DriverAddress(driver)
	if err != nil {
		t.Fatalf("driver: %v", err)
	}
	s0, err := d.SessionAddress(driver, 0)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	s1, err := d.SessionAddress(driver, 1)
	if err != nil {
		t.Fatalf("session: %v", err)
	}

	seen := map[address.Address]bool{}
	for _, a := range []address.Address{platform, record, s0, s1} {
		if seen[a] {
			t.Fatalf("duplicate address %s", a)
		}
		seen[a] = true
	}
}

func TestSeedLimits(t *testing.T) {
	long := bytes.Repeat([]byte{1}, MaxSeedLength+1)
	if _, _, err := FindProgramAddress([][]byte{long}, testProgram); !errors.Is(err, ErrSeedTooLong) {
		t.Fatalf("expected ErrSeedTooLong, got %v", err)
	}

	many := make([][]byte, MaxSeeds)
	if _, _, err := FindProgramAddress(many, testProgram); !errors.Is(err, ErrTooManySeeds) {
		t.Fatalf("expected ErrTooManySeeds once the bump is appended, got %v", err)
	}
}
