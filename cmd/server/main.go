// Command server runs the scholarships REST API.
package main

func main() {
	Execute()
}
