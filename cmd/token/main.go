// Command token mints a bearer token signed with JWT_SECRET, for local
// testing against the API.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"payrun/internal/domain/auth"
	"payrun/internal/platform/config"
)

func main() {
	userID := flag.String("user", "1", "user id placed in the uid claim")
	role := flag.String("role", auth.RolePayrollAdmin, "role name (payroll_admin or payroll_viewer)")
	ttl := flag.Duration("ttl", 8*time.Hour, "token lifetime")
	flag.Parse()

	if _, ok := auth.RolePermissions[*role]; !ok {
		log.Fatalf("unknown role %q", *role)
	}

	cfg := config.Load()
	token, err := auth.GenerateToken(cfg.JWTSecret, auth.Claims{UserID: *userID, RoleName: *role}, *ttl)
	if err != nil {
		log.Fatalf("sign token: %v", err)
	}
	fmt.Fprintln(os.Stdout, token)
}
