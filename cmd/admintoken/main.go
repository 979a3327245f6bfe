package main

import (
	"crypto/rand"
	"encoding/base64"
	"flag"
	"fmt"
	"log"

	"golang.org/x/crypto/bcrypt"
)

// admintoken generates an admin credential pair: a random token to hand to
// the operator and its bcrypt hash for ADMIN_TOKEN_HASH.
func main() {
	token := flag.String("token", "", "Hash this token instead of generating a random one")
	cost := flag.Int("cost", bcrypt.DefaultCost, "bcrypt cost")
	flag.Parse()

	t := *token
	if t == "" {
		var buf [24]byte
		if _, err := rand.Read(buf[:]); err != nil {
			log.Fatalf("Unable to generate token: %v", err)
		}
		t = base64.RawURLEncoding.EncodeToString(buf[:])
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(t), *cost)
	if err != nil {
		log.Fatalf("Unable to hash token: %v", err)
	}

	fmt.Printf("Token (give to the admin, store nowhere else):\n  %s\n\n", t)
	fmt.Printf("ADMIN_TOKEN_HASH=%s\n", hash)
}
