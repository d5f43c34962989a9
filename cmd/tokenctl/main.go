// tokenctl mints upload tokens for the server's configured secret. Hand the
// printed token to an uploader; it goes into the Authorization header or the
// "auth" form field of POST /upload.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dmitrijs2005/dropserve/internal/flagx"
	"github.com/dmitrijs2005/dropserve/internal/server/auth"
	"github.com/dmitrijs2005/dropserve/internal/server/config"
)

func main() {

	// Only -n and -m belong to this tool; the rest goes to config.
	args := flagx.FilterArgs(os.Args[1:], []string{"-n", "-m"})

	fs := flag.NewFlagSet("tokenctl", flag.ExitOnError)
	uploader := fs.String("n", "operator", "uploader name embedded in the token")
	minutes := fs.Int("m", 0, "validity in minutes (0 = server default)")
	if err := fs.Parse(args); err != nil {
		log.Fatalf("parsing flags: %v", err)
	}

	cfg := config.LoadConfig()

	validity := cfg.UploadTokenValidityDuration
	if *minutes > 0 {
		validity = time.Duration(*minutes) * time.Minute
	}

	token, err := auth.MintUploadToken(*uploader, []byte(cfg.SecretKey), validity)
	if err != nil {
		log.Fatalf("minting token: %v", err)
	}

	fmt.Println(token)
}
