package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"dexgrad/pkg/crypto"
)

// Печатает bcrypt хеш для ADMIN_PASSWORD_HASH. Пароль читается из stdin,
// чтобы не попадать в историю shell.
func main() {
	cost := flag.Int("cost", crypto.DefaultCost, "bcrypt cost")
	flag.Parse()

	reader := bufio.NewReader(os.Stdin)
	password, err := reader.ReadString('\n')
	if err != nil && password == "" {
		fmt.Fprintf(os.Stderr, "failed to read password: %v\n", err)
		os.Exit(1)
	}
	password = strings.TrimRight(password, "\r\n")

	hash, err := crypto.HashPassword(password, *cost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
