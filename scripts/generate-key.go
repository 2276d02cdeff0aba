// Package main is a development utility for generating the secrets the server
// needs at startup: the 32-byte hex encryption key for provider OAuth tokens
// at rest (T30_ENCRYPTION_KEY) and a random JWT signing secret
// (T30_JWT_SECRET). It prints ready-to-paste export lines so developers can
// bootstrap a local environment without inventing weak values by hand. Do not
// reuse generated secrets across environments.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log"
)

func main() {
	encKey := make([]byte, 32)
	if _, err := rand.Read(encKey); err != nil {
		log.Fatal(err)
	}

	jwtSecret := make([]byte, 48)
	if _, err := rand.Read(jwtSecret); err != nil {
		log.Fatal(err)
	}

	fmt.Println("==========================================================")
	fmt.Println("Generated secrets")
	fmt.Println("==========================================================")
	fmt.Printf("\nexport T30_ENCRYPTION_KEY=%s\n", hex.EncodeToString(encKey))
	fmt.Printf("export T30_JWT_SECRET=%s\n", base64.RawURLEncoding.EncodeToString(jwtSecret))
	fmt.Println("\n==========================================================")
	fmt.Println("Add these to your shell profile or .env before starting the server.")
	fmt.Println("==========================================================")
}
