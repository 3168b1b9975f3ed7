package main

import (
	"fmt"
	"math/rand/v2"
	"net/http"
)

// Upstream "burro" para validar o gateway na mão: não limita nada, só responde.
func main() {
	http.HandleFunc("/home", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<h1>Home</h1><p>Requisição recebida com sucesso!</p>")
		fmt.Println("Log: Alguém acessou o endpoint /home")
	})
	http.HandleFunc("/random", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "%d\n", rand.IntN(100))
		fmt.Println("Log: Alguém acessou o endpoint /random")
	})
	fmt.Println("Servidor rodando em http://localhost:8081")
	err := http.ListenAndServe(":8081", nil)
	if err != nil {
		fmt.Printf("Erro ao subir o servidor: %s\n", err)
	}
}
