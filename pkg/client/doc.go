// Package client is the caller side of the login bridge. It signs requests
// with the shared api key and posts them to a site's service endpoint.
//
//	c, err := client.New(client.Config{
//		SiteURL:    "https://learn.example.com",
//		APIKey:     key,
//		VerifyPeer: true,
//	})
//
//	// hand the current browser over to the site, signed in
//	if err := c.LogUser(ctx, w, r, "EXT-1", client.LogUserOptions{Redirect: "/course/view.php?id=4"}); err != nil {
//		http.Error(w, c.LastMessage(), http.StatusBadGateway)
//	}
//
// Every failure, from a refused request to an unreachable server, is an
// *Error carrying a readable message.
package client
